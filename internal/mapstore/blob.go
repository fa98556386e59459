package mapstore

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// encodeArray compresses the row-major values of m using gob and gzip.
func encodeArray(m *mat.Dense) ([]byte, error) {
	r, c := m.Dims()
	values := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		values = append(values, m.RawRowView(i)...)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(values); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeArray reverses encodeArray into a rows×cols matrix.
func decodeArray(blob []byte, rows, cols int) (*mat.Dense, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty array blob")
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid array shape %dx%d", rows, cols)
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var values []float64
	if err := gob.NewDecoder(gz).Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode array: %w", err)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("array holds %d values, want %dx%d", len(values), rows, cols)
	}
	return mat.NewDense(rows, cols, values), nil
}
