package boundarymap

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Encoder projects n×D samples to n×2.
type Encoder interface {
	Encode(ctx context.Context, x mat.Matrix) (*mat.Dense, error)
}

// Decoder maps n×2 points back to n×D.
type Decoder interface {
	Decode(ctx context.Context, y mat.Matrix) (*mat.Dense, error)
}

// Classifier returns an n×C matrix of class probabilities. Column c is the
// probability of class c.
type Classifier interface {
	PredictProba(ctx context.Context, x mat.Matrix) (*mat.Dense, error)
}
