package boundarymap

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/boundarymap/internal/config"
	"github.com/banshee-data/boundarymap/internal/errmap"
	"github.com/banshee-data/boundarymap/internal/monitoring"
)

// Pixel labels written over corpus samples in the label image.
const (
	TrainLabel = -1
	TestLabel  = -2
)

// Pixel addresses one cell of the map.
type Pixel struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Map is one generated decision boundary map. All images are
// Resolution×Resolution.
type Map struct {
	Resolution int

	// Labels holds the predicted class per cell, overwritten with TrainLabel
	// and TestLabel where corpus samples land.
	Labels *mat.Dense
	// Confidence holds the winning class probability; 1 on corpus pixels.
	Confidence *mat.Dense

	ProjectionErrors        *mat.Dense
	InverseProjectionErrors *mat.Dense

	TrainPixels []Pixel
	TestPixels  []Pixel
}

// Label returns the label image value at (i, j) as a class id.
func (m *Map) Label(i, j int) int {
	return int(m.Labels.At(i, j))
}

// Generator builds boundary maps from its collaborators.
type Generator struct {
	Encoder    Encoder
	Decoder    Decoder
	Classifier Classifier

	Resolution       int
	DegeneratePolicy string

	Projection *errmap.ProjectionEstimator
	Inverse    *errmap.InverseProjectionEstimator
}

// NewGenerator wires collaborators with the settings in cfg.
func NewGenerator(enc Encoder, dec Decoder, clf Classifier, cfg *config.TuningConfig) *Generator {
	return &Generator{
		Encoder:          enc,
		Decoder:          dec,
		Classifier:       clf,
		Resolution:       cfg.GetResolution(),
		DegeneratePolicy: cfg.GetDegeneratePolicy(),
		Projection: &errmap.ProjectionEstimator{
			Neighbors: cfg.GetNeighborhoodSize(),
			Workers:   cfg.GetWorkers(),
		},
		Inverse: &errmap.InverseProjectionEstimator{Workers: cfg.GetWorkers()},
	}
}

// extent is the bounding box of the encoded corpus.
type extent struct {
	minX, maxX, minY, maxY float64
}

// Generate encodes train and test, samples the 2D grid, decodes and
// classifies it, and computes both error maps.
func (g *Generator) Generate(ctx context.Context, train, test mat.Matrix) (*Map, error) {
	res := g.Resolution
	if res <= 0 {
		return nil, fmt.Errorf("%w: resolution must be positive, got %d", errmap.ErrInvalidParameter, res)
	}

	done := monitoring.Stage("Generator", "encode corpus nD -> 2D")
	train2d, err := g.encode(ctx, train)
	if err != nil {
		return nil, fmt.Errorf("encode training data: %w", err)
	}
	test2d, err := g.encode(ctx, test)
	if err != nil {
		return nil, fmt.Errorf("encode testing data: %w", err)
	}
	done()

	ext, err := encodedExtent(train2d, test2d)
	if err != nil {
		return nil, err
	}

	space2d := SampleGrid(res, ext.minX, ext.maxX, ext.minY, ext.maxY)

	done = monitoring.Stage("Generator", "decode 2D -> nD")
	spaceNd, err := g.Decoder.Decode(ctx, space2d)
	if err != nil {
		return nil, fmt.Errorf("decode sampling grid: %w", err)
	}
	if n, _ := spaceNd.Dims(); n != res*res {
		return nil, fmt.Errorf("%w: decoder returned %d rows for %d grid points", errmap.ErrShapeMismatch, n, res*res)
	}
	done()

	done = monitoring.Stage("Generator", "classify decoded grid")
	proba, err := g.Classifier.PredictProba(ctx, spaceNd)
	if err != nil {
		return nil, fmt.Errorf("classify decoded grid: %w", err)
	}
	if n, _ := proba.Dims(); n != res*res {
		return nil, fmt.Errorf("%w: classifier returned %d rows for %d grid points", errmap.ErrShapeMismatch, n, res*res)
	}
	predicted, confidence := argmaxRows(proba)
	done()

	out := &Map{
		Resolution: res,
		Labels:     mat.NewDense(res, res, nil),
		Confidence: mat.NewDense(res, res, confidence),
	}
	for k, l := range predicted {
		out.Labels.Set(k/res, k%res, float64(l))
	}

	out.TrainPixels = ext.pixels(train2d, res)
	out.TestPixels = ext.pixels(test2d, res)
	for _, p := range out.TrainPixels {
		out.Labels.Set(p.Row, p.Col, TrainLabel)
		out.Confidence.Set(p.Row, p.Col, 1)
	}
	for _, p := range out.TestPixels {
		out.Labels.Set(p.Row, p.Col, TestLabel)
		out.Confidence.Set(p.Row, p.Col, 1)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = monitoring.Stage("Generator", "projection errors")
	out.ProjectionErrors, err = g.projection().Compute(space2d, spaceNd, predicted, res)
	if err != nil {
		return nil, fmt.Errorf("projection errors: %w", err)
	}
	done()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done = monitoring.Stage("Generator", "inverse projection errors")
	grid, err := errmap.GridFromRows(spaceNd, res, res)
	if err != nil {
		return nil, fmt.Errorf("inverse projection errors: %w", err)
	}
	out.InverseProjectionErrors, err = g.inverse().Compute(grid)
	if errors.Is(err, errmap.ErrDegenerateRange) && g.DegeneratePolicy == config.PolicyZero {
		monitoring.Logf("[Generator] inverse projection errors are flat, substituting zeros: %v", err)
		out.InverseProjectionErrors, err = mat.NewDense(res, res, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("inverse projection errors: %w", err)
	}
	done()

	return out, nil
}

func (g *Generator) encode(ctx context.Context, x mat.Matrix) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if x == nil {
		return nil, fmt.Errorf("%w: no samples", errmap.ErrShapeMismatch)
	}
	if n, _ := x.Dims(); n == 0 {
		return nil, fmt.Errorf("%w: no samples", errmap.ErrShapeMismatch)
	}
	y, err := g.Encoder.Encode(ctx, x)
	if err != nil {
		return nil, err
	}
	n, c := y.Dims()
	if c != 2 {
		return nil, fmt.Errorf("%w: encoder returned %dx%d, want %dx2", errmap.ErrShapeMismatch, n, c, n)
	}
	for i := 0; i < n; i++ {
		if row := y.RawRowView(i); !finite(row) {
			return nil, fmt.Errorf("%w: encoder returned non-finite point %v at row %d", errmap.ErrInvalidParameter, row, i)
		}
	}
	return y, nil
}

func finite(v []float64) bool {
	if floats.HasNaN(v) {
		return false
	}
	for _, x := range v {
		if math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (g *Generator) projection() *errmap.ProjectionEstimator {
	if g.Projection == nil {
		return errmap.NewProjectionEstimator()
	}
	return g.Projection
}

func (g *Generator) inverse() *errmap.InverseProjectionEstimator {
	if g.Inverse == nil {
		return &errmap.InverseProjectionEstimator{}
	}
	return g.Inverse
}

// SampleGrid returns the res²×2 sampling grid. Row i*res+j holds
// (minX + i/res*(maxX-minX), minY + j/res*(maxY-minY)); the last row and
// column stop one step short of the maximum.
func SampleGrid(res int, minX, maxX, minY, maxY float64) *mat.Dense {
	out := mat.NewDense(res*res, 2, nil)
	for i := 0; i < res; i++ {
		for j := 0; j < res; j++ {
			k := i*res + j
			out.Set(k, 0, float64(i)/float64(res)*(maxX-minX)+minX)
			out.Set(k, 1, float64(j)/float64(res)*(maxY-minY)+minY)
		}
	}
	return out
}

func encodedExtent(sets ...*mat.Dense) (extent, error) {
	var xs, ys []float64
	for _, s := range sets {
		n, _ := s.Dims()
		for i := 0; i < n; i++ {
			xs = append(xs, s.At(i, 0))
			ys = append(ys, s.At(i, 1))
		}
	}
	if len(xs) == 0 {
		return extent{}, fmt.Errorf("%w: no encoded samples", errmap.ErrShapeMismatch)
	}
	ext := extent{
		minX: floats.Min(xs), maxX: floats.Max(xs),
		minY: floats.Min(ys), maxY: floats.Max(ys),
	}
	if ext.maxX == ext.minX || ext.maxY == ext.minY {
		return extent{}, fmt.Errorf("%w: encoded corpus spans [%g,%g]x[%g,%g]",
			errmap.ErrDegenerateRange, ext.minX, ext.maxX, ext.minY, ext.maxY)
	}
	return ext, nil
}

// pixels scales encoded points onto [0, res-1] and truncates to cells.
// Points outside the extent land on the nearest border cell.
func (e extent) pixels(points *mat.Dense, res int) []Pixel {
	n, _ := points.Dims()
	out := make([]Pixel, n)
	scale := float64(res - 1)
	for k := 0; k < n; k++ {
		out[k] = Pixel{
			Row: cell((points.At(k, 0)-e.minX)/(e.maxX-e.minX)*scale, res),
			Col: cell((points.At(k, 1)-e.minY)/(e.maxY-e.minY)*scale, res),
		}
	}
	return out
}

// cell truncates a scaled coordinate and clamps it to [0, res-1].
func cell(v float64, res int) int {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > float64(res-1):
		return res - 1
	}
	return int(v)
}

// argmaxRows returns the winning column and its value for every row.
func argmaxRows(proba *mat.Dense) ([]int, []float64) {
	n, _ := proba.Dims()
	labels := make([]int, n)
	conf := make([]float64, n)
	for i := 0; i < n; i++ {
		row := proba.RawRowView(i)
		labels[i] = floats.MaxIdx(row)
		conf[i] = row[labels[i]]
	}
	return labels, conf
}
