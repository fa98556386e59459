package errmap

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// InverseProjectionEstimator scores local roughness of a decoded nD grid.
type InverseProjectionEstimator struct {
	// Workers bounds parallelism across grid rows; 0 means GOMAXPROCS.
	Workers int
}

// ComputeInverseProjectionErrors runs a default InverseProjectionEstimator.
func ComputeInverseProjectionErrors(grid *GridND) (*mat.Dense, error) {
	return (&InverseProjectionEstimator{}).Compute(grid)
}

// Compute returns the roughness grid min-max normalised to [0, 1]. A flat
// field returns ErrDegenerateRange and no grid.
func (e *InverseProjectionEstimator) Compute(grid *GridND) (*mat.Dense, error) {
	out, err := e.Raw(grid)
	if err != nil {
		return nil, err
	}
	// Raw has returned, so every cell is final before min and max are read.
	if err := Normalize(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Raw returns the unnormalised roughness: for each cell, the mean Euclidean
// distance to its in-bounds 4-connected neighbours. Edge cells average 3
// distances and corners 2. A 1x1 grid has no neighbours and scores 0.
func (e *InverseProjectionEstimator) Raw(grid *GridND) (*mat.Dense, error) {
	if e.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidParameter, e.Workers)
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	out := mat.NewDense(grid.Rows, grid.Cols, nil)
	data := out.RawMatrix().Data
	parallelFor(grid.Rows, e.Workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			for j := 0; j < grid.Cols; j++ {
				data[i*grid.Cols+j] = cellRoughness(grid, i, j)
			}
		}
	})
	return out, nil
}

var neighborOffsets = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func cellRoughness(g *GridND, i, j int) float64 {
	center := g.At(i, j)
	var sum float64
	count := 0
	for _, off := range neighborOffsets {
		ni, nj := i+off[0], j+off[1]
		if ni < 0 || ni >= g.Rows || nj < 0 || nj >= g.Cols {
			continue
		}
		sum += euclidean(center, g.At(ni, nj))
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Normalize rescales m in place to [0, 1] with (v - min) / (max - min).
// The minimum maps to exactly 0 and the maximum to exactly 1. When every
// value is equal m is left untouched and ErrDegenerateRange is returned.
func Normalize(m *mat.Dense) error {
	if m == nil || m.IsEmpty() {
		return fmt.Errorf("%w: empty matrix", ErrShapeMismatch)
	}
	r, c := m.Dims()
	values := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		values = append(values, m.RawRowView(i)...)
	}
	lo, hi := floats.Min(values), floats.Max(values)
	span := hi - lo
	if span == 0 {
		return fmt.Errorf("%w: every cell equals %g", ErrDegenerateRange, lo)
	}
	m.Apply(func(_, _ int, v float64) float64 {
		return (v - lo) / span
	}, m)
	return nil
}
