package errmap

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DefaultNeighbors is the rank window size K used for trustworthiness.
const DefaultNeighbors = 8

// ProjectionEstimator computes per-sample trustworthiness errors between a
// 2D projection and its nD source. The zero value is not usable; build one
// with NewProjectionEstimator or set Neighbors explicitly.
type ProjectionEstimator struct {
	// Neighbors is K, the number of rank positions compared per sample.
	Neighbors int
	// Workers bounds parallelism; 0 means GOMAXPROCS, 1 runs inline.
	Workers int
}

// NewProjectionEstimator returns an estimator with K = DefaultNeighbors.
func NewProjectionEstimator() *ProjectionEstimator {
	return &ProjectionEstimator{Neighbors: DefaultNeighbors}
}

// ComputeProjectionErrors runs a default ProjectionEstimator.
func ComputeProjectionErrors(points2d, pointsNd mat.Matrix, labels []int, resolution int) (*mat.Dense, error) {
	return NewProjectionEstimator().Compute(points2d, pointsNd, labels, resolution)
}

// Compute returns a resolution×resolution grid of projection errors. Sample k
// lands at (k/resolution, k%resolution).
//
// The error is 1 - (matches-1)/(K-1) with continuity fixed at 1. It is not
// clamped: a window with zero matching labels yields K/(K-1).
func (e *ProjectionEstimator) Compute(points2d, pointsNd mat.Matrix, labels []int, resolution int) (*mat.Dense, error) {
	if err := e.validate(points2d, pointsNd, labels, resolution); err != nil {
		return nil, err
	}

	order2d := RankByNorm(points2d)
	orderNd := RankByNorm(pointsNd)
	k := e.Neighbors

	out := mat.NewDense(resolution, resolution, nil)
	data := out.RawMatrix().Data
	parallelFor(len(labels), e.Workers, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			data[i] = Trustworthiness(order2d, orderNd, labels, i, k)
		}
	})
	return out, nil
}

// Trustworthiness scores sample position i. It pairs the first k entries of
// the 2D and nD rank windows by position and counts how many pairs carry the
// same label.
func Trustworthiness(order2d, orderNd, labels []int, i, k int) float64 {
	w2d := NeighborWindow(order2d, i, k)
	wNd := NeighborWindow(orderNd, i, k)

	matches := 0
	for p := 0; p < k; p++ {
		if labels[wNd[p]] == labels[w2d[p]] {
			matches++
		}
	}
	const continuity = 1.0
	trust := 1 - float64(matches-1)/float64(k-1)
	return trust * continuity
}

func (e *ProjectionEstimator) validate(points2d, pointsNd mat.Matrix, labels []int, resolution int) error {
	if e.Neighbors <= 1 {
		return fmt.Errorf("%w: neighbors must be > 1, got %d", ErrInvalidParameter, e.Neighbors)
	}
	if e.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidParameter, e.Workers)
	}
	if resolution <= 0 {
		return fmt.Errorf("%w: resolution must be positive, got %d", ErrInvalidParameter, resolution)
	}
	if points2d == nil || pointsNd == nil {
		return fmt.Errorf("%w: nil point set", ErrShapeMismatch)
	}

	n2, c2 := points2d.Dims()
	nNd, _ := pointsNd.Dims()
	if c2 != 2 {
		return fmt.Errorf("%w: 2D point set has %d columns", ErrShapeMismatch, c2)
	}
	if n2 != nNd {
		return fmt.Errorf("%w: %d 2D points vs %d nD points", ErrShapeMismatch, n2, nNd)
	}
	if len(labels) != n2 {
		return fmt.Errorf("%w: %d labels for %d points", ErrShapeMismatch, len(labels), n2)
	}
	if n2 != resolution*resolution {
		return fmt.Errorf("%w: %d points cannot fill a %dx%d grid", ErrShapeMismatch, n2, resolution, resolution)
	}
	if n2 < e.Neighbors {
		return fmt.Errorf("%w: %d points is fewer than %d neighbors", ErrInvalidParameter, n2, e.Neighbors)
	}
	return nil
}
