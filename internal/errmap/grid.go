package errmap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// GridND is a dense rows×cols block of dim-length vectors stored row-major:
// cell (i, j) occupies Data[(i*Cols+j)*Dim : (i*Cols+j+1)*Dim].
type GridND struct {
	Rows int
	Cols int
	Dim  int
	Data []float64
}

// NewGridND wraps data as a rows×cols×dim grid. data is not copied.
func NewGridND(rows, cols, dim int, data []float64) (*GridND, error) {
	g := &GridND{Rows: rows, Cols: cols, Dim: dim, Data: data}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// GridFromRows reshapes an N×D matrix of decoded samples into a rows×cols×D
// grid. Sample k becomes cell (k/cols, k%cols), matching the order in which
// the sampling grid was flattened.
func GridFromRows(m mat.Matrix, rows, cols int) (*GridND, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil matrix", ErrShapeMismatch)
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d", ErrInvalidParameter, rows, cols)
	}
	n, d := m.Dims()
	if n != rows*cols {
		return nil, fmt.Errorf("%w: %d samples cannot fill a %dx%d grid", ErrShapeMismatch, n, rows, cols)
	}
	data := make([]float64, n*d)
	for k := 0; k < n; k++ {
		mat.Row(data[k*d:(k+1)*d], k, m)
	}
	return NewGridND(rows, cols, d, data)
}

// At returns cell (i, j) as a slice aliasing Data.
func (g *GridND) At(i, j int) []float64 {
	off := (i*g.Cols + j) * g.Dim
	return g.Data[off : off+g.Dim : off+g.Dim]
}

// Validate checks the dimensions against len(Data) and rejects NaN or Inf.
func (g *GridND) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil grid", ErrShapeMismatch)
	}
	if g.Rows <= 0 || g.Cols <= 0 || g.Dim <= 0 {
		return fmt.Errorf("%w: grid shape %dx%dx%d", ErrShapeMismatch, g.Rows, g.Cols, g.Dim)
	}
	if want := g.Rows * g.Cols * g.Dim; len(g.Data) != want {
		return fmt.Errorf("%w: grid %dx%dx%d needs %d values, got %d",
			ErrShapeMismatch, g.Rows, g.Cols, g.Dim, want, len(g.Data))
	}
	for idx, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at offset %d", ErrInvalidParameter, idx)
		}
	}
	return nil
}
