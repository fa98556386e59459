package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/boundarymap/internal/boundarymap"
	"github.com/banshee-data/boundarymap/internal/config"
	"github.com/banshee-data/boundarymap/internal/errmap"
	"github.com/banshee-data/boundarymap/internal/mapstore"
	"github.com/banshee-data/boundarymap/internal/monitoring"
)

// Dump is the JSON input for precomputed arrays. GridND, when present, is
// Resolution×Resolution×D; otherwise PointsND is reshaped row-major.
type Dump struct {
	Resolution int           `json:"resolution"`
	Points2D   [][]float64   `json:"points2d"`
	PointsND   [][]float64   `json:"points_nd"`
	Labels     []int         `json:"labels"`
	GridND     [][][]float64 `json:"grid_nd,omitempty"`
}

// ReadDump decodes a Dump from r.
func ReadDump(r io.Reader) (*Dump, error) {
	var d Dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode dump: %w", err)
	}
	return &d, nil
}

// Result is the JSON output of one computation.
type Result struct {
	RunID                   string              `json:"run_id,omitempty"`
	Resolution              int                 `json:"resolution"`
	Labels                  [][]float64         `json:"labels,omitempty"`
	Confidence              [][]float64         `json:"confidence,omitempty"`
	ProjectionErrors        [][]float64         `json:"projection_errors"`
	InverseProjectionErrors [][]float64         `json:"inverse_projection_errors"`
	TrainPixels             []boundarymap.Pixel `json:"train_pixels,omitempty"`
	TestPixels              []boundarymap.Pixel `json:"test_pixels,omitempty"`

	m *boundarymap.Map
}

func newResult(m *boundarymap.Map) *Result {
	return &Result{
		Resolution:              m.Resolution,
		Labels:                  rowsOf(m.Labels),
		Confidence:              rowsOf(m.Confidence),
		ProjectionErrors:        rowsOf(m.ProjectionErrors),
		InverseProjectionErrors: rowsOf(m.InverseProjectionErrors),
		TrainPixels:             m.TrainPixels,
		TestPixels:              m.TestPixels,
		m:                       m,
	}
}

// Map returns the generated map backing the result.
func (r *Result) Map() *boundarymap.Map {
	return r.m
}

// WriteJSON writes the result as indented JSON.
func (r *Result) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// RunDump computes both error maps from precomputed arrays.
func RunDump(d *Dump, cfg *config.TuningConfig) (*Result, error) {
	res := d.Resolution
	if res == 0 {
		res = cfg.GetResolution()
	}

	points2d, err := denseFromRows("points2d", d.Points2D)
	if err != nil {
		return nil, err
	}
	pointsNd, err := denseFromRows("points_nd", d.PointsND)
	if err != nil {
		return nil, err
	}

	done := monitoring.Stage("dbm-errors", "projection errors")
	proj := &errmap.ProjectionEstimator{
		Neighbors: cfg.GetNeighborhoodSize(),
		Workers:   cfg.GetWorkers(),
	}
	projErrs, err := proj.Compute(points2d, pointsNd, d.Labels, res)
	if err != nil {
		return nil, fmt.Errorf("projection errors: %w", err)
	}
	done()

	var grid *errmap.GridND
	if d.GridND != nil {
		grid, err = gridFromNested(d.GridND)
	} else {
		grid, err = errmap.GridFromRows(pointsNd, res, res)
	}
	if err != nil {
		return nil, fmt.Errorf("grid_nd: %w", err)
	}

	done = monitoring.Stage("dbm-errors", "inverse projection errors")
	inv := &errmap.InverseProjectionEstimator{Workers: cfg.GetWorkers()}
	invErrs, err := inv.Compute(grid)
	if errors.Is(err, errmap.ErrDegenerateRange) && cfg.GetDegeneratePolicy() == config.PolicyZero {
		monitoring.Logf("[dbm-errors] inverse projection errors are flat, substituting zeros")
		invErrs, err = mat.NewDense(grid.Rows, grid.Cols, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("inverse projection errors: %w", err)
	}
	done()

	return newResult(&boundarymap.Map{
		Resolution:              res,
		ProjectionErrors:        projErrs,
		InverseProjectionErrors: invErrs,
	}), nil
}

// Dataset is a labelled sample matrix read from CSV.
type Dataset struct {
	X      *mat.Dense
	Labels []int
}

// ReadCSV reads numeric rows whose last column is an integer class label.
// A first row in which no field parses as a number is treated as a header.
// NaN and infinite features are rejected.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) > 0 && isHeaderRecord(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv has no data rows")
	}

	width := len(records[0])
	if width < 2 {
		return nil, fmt.Errorf("csv needs at least one feature and a label column, got %d columns", width)
	}
	dim := width - 1
	data := make([]float64, 0, len(records)*dim)
	labels := make([]int, len(records))
	for i, rec := range records {
		if len(rec) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i+1, len(rec), width)
		}
		for j := 0; j < dim; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+1, j+1, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d column %d is %v", errmap.ErrInvalidParameter, i+1, j+1, v)
			}
			data = append(data, v)
		}
		l, err := strconv.Atoi(strings.TrimSpace(rec[dim]))
		if err != nil {
			return nil, fmt.Errorf("row %d label: %w", i+1, err)
		}
		labels[i] = l
	}
	return &Dataset{X: mat.NewDense(len(records), dim, data), Labels: labels}, nil
}

func isHeaderRecord(rec []string) bool {
	for _, f := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			return false
		}
	}
	return true
}

// Split holds out every n-th row as test data. n <= 1 keeps everything in
// the training set and leaves test empty.
func (ds *Dataset) Split(n int) (train, test *mat.Dense, trainLabels []int) {
	rows, dim := ds.X.Dims()
	var trainIdx, testIdx []int
	for i := 0; i < rows; i++ {
		if n > 1 && i%n == n-1 {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	pick := func(idx []int) *mat.Dense {
		if len(idx) == 0 {
			return nil
		}
		out := mat.NewDense(len(idx), dim, nil)
		for k, i := range idx {
			out.SetRow(k, ds.X.RawRowView(i))
		}
		return out
	}
	trainLabels = make([]int, len(trainIdx))
	for k, i := range trainIdx {
		trainLabels[k] = ds.Labels[i]
	}
	return pick(trainIdx), pick(testIdx), trainLabels
}

// RunDataset fits PCA and a centroid classifier on the training split and
// generates a full boundary map.
func RunDataset(ctx context.Context, ds *Dataset, testEvery int, cfg *config.TuningConfig) (*Result, error) {
	train, test, trainLabels := ds.Split(testEvery)
	if train == nil || test == nil {
		return nil, fmt.Errorf("split of %d rows with test-every=%d leaves an empty train or test set", len(ds.Labels), testEvery)
	}

	pca, err := boundarymap.FitPCA(train)
	if err != nil {
		return nil, fmt.Errorf("fit pca: %w", err)
	}
	clf, err := boundarymap.FitCentroids(train, trainLabels)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}

	gen := boundarymap.NewGenerator(pca, pca, clf, cfg)
	m, err := gen.Generate(ctx, train, test)
	if err != nil {
		return nil, err
	}
	return newResult(m), nil
}

func printRuns(w io.Writer, runs []*mapstore.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tRESOLUTION\tARRAYS\tCREATED")
	for _, r := range runs {
		created := time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.RunID, r.Resolution, strings.Join(r.Kinds, ","), created)
	}
	return tw.Flush()
}

func denseFromRows(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", errmap.ErrShapeMismatch, name)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: %s row %d has %d values, want %d", errmap.ErrShapeMismatch, name, i, len(r), cols)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

func gridFromNested(g [][][]float64) (*errmap.GridND, error) {
	if len(g) == 0 || len(g[0]) == 0 || len(g[0][0]) == 0 {
		return nil, fmt.Errorf("%w: grid is empty", errmap.ErrShapeMismatch)
	}
	rows, cols, dim := len(g), len(g[0]), len(g[0][0])
	data := make([]float64, 0, rows*cols*dim)
	for i, row := range g {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: grid row %d has %d cells, want %d", errmap.ErrShapeMismatch, i, len(row), cols)
		}
		for j, cell := range row {
			if len(cell) != dim {
				return nil, fmt.Errorf("%w: grid cell (%d,%d) has %d values, want %d", errmap.ErrShapeMismatch, i, j, len(cell), dim)
			}
			data = append(data, cell...)
		}
	}
	return errmap.NewGridND(rows, cols, dim, data)
}

func rowsOf(m *mat.Dense) [][]float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		mat.Row(out[i], i, m)
	}
	return out
}
