package boundarymap

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/boundarymap/internal/errmap"
)

// CentroidClassifier scores each class by the softmax of the negative squared
// distance to the class mean. Labels are column indices, so classes run from
// 0 to the largest label seen; classes without samples always score 0.
type CentroidClassifier struct {
	centroids [][]float64 // nil for absent classes
}

// FitCentroids computes per-class means from n×D samples and their labels.
func FitCentroids(x mat.Matrix, labels []int) (*CentroidClassifier, error) {
	n, d := x.Dims()
	if len(labels) != n {
		return nil, fmt.Errorf("%w: %d labels for %d samples", errmap.ErrShapeMismatch, len(labels), n)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: no samples", errmap.ErrShapeMismatch)
	}

	classes := 0
	for i, l := range labels {
		if l < 0 {
			return nil, fmt.Errorf("%w: negative label %d at sample %d", errmap.ErrInvalidParameter, l, i)
		}
		if l+1 > classes {
			classes = l + 1
		}
	}

	sums := make([][]float64, classes)
	counts := make([]int, classes)
	row := make([]float64, d)
	for i, l := range labels {
		if sums[l] == nil {
			sums[l] = make([]float64, d)
		}
		mat.Row(row, i, x)
		floats.Add(sums[l], row)
		counts[l]++
	}
	for c := range sums {
		if counts[c] > 0 {
			floats.Scale(1/float64(counts[c]), sums[c])
		}
	}
	return &CentroidClassifier{centroids: sums}, nil
}

// Classes returns the number of probability columns.
func (c *CentroidClassifier) Classes() int {
	return len(c.centroids)
}

// PredictProba returns an n×Classes() probability matrix; rows sum to 1.
func (c *CentroidClassifier) PredictProba(ctx context.Context, x mat.Matrix) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, d := x.Dims()
	for _, centroid := range c.centroids {
		if centroid != nil && len(centroid) != d {
			return nil, fmt.Errorf("%w: classifier expects %d features, got %d", errmap.ErrShapeMismatch, len(centroid), d)
		}
	}

	out := mat.NewDense(n, c.Classes(), nil)
	row := make([]float64, d)
	scores := make([]float64, c.Classes())
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		best := math.Inf(-1)
		for k, centroid := range c.centroids {
			if centroid == nil {
				scores[k] = math.Inf(-1)
				continue
			}
			dist := floats.Distance(row, centroid, 2)
			scores[k] = -dist * dist
			if scores[k] > best {
				best = scores[k]
			}
		}
		var sum float64
		for k := range scores {
			scores[k] = math.Exp(scores[k] - best)
			sum += scores[k]
		}
		floats.Scale(1/sum, scores)
		out.SetRow(i, scores)
	}
	return out, nil
}
