package boundarymap

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/boundarymap/internal/errmap"
)

// PCAProjector encodes onto the first two principal components of its
// training data and decodes by mapping back through the same basis.
type PCAProjector struct {
	mean  []float64
	basis *mat.Dense // D×2
}

// FitPCA computes the projection from n×D samples. It needs at least two
// samples and two features.
func FitPCA(x mat.Matrix) (*PCAProjector, error) {
	n, d := x.Dims()
	if n < 2 || d < 2 {
		return nil, fmt.Errorf("%w: PCA needs at least 2x2 samples, got %dx%d", errmap.ErrShapeMismatch, n, d)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	mean := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean[j] = stat.Mean(col, nil)
	}

	basis := mat.DenseCopyOf(vecs.Slice(0, d, 0, 2))
	return &PCAProjector{mean: mean, basis: basis}, nil
}

// Dim returns D, the input dimensionality.
func (p *PCAProjector) Dim() int {
	return len(p.mean)
}

// Encode returns (x - mean) · basis.
func (p *PCAProjector) Encode(ctx context.Context, x mat.Matrix) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, d := x.Dims()
	if d != p.Dim() {
		return nil, fmt.Errorf("%w: encode expects %d features, got %d", errmap.ErrShapeMismatch, p.Dim(), d)
	}
	centered := mat.NewDense(n, d, nil)
	centered.Apply(func(_, j int, v float64) float64 { return v - p.mean[j] }, x)

	out := mat.NewDense(n, 2, nil)
	out.Mul(centered, p.basis)
	return out, nil
}

// Decode returns y · basisᵀ + mean.
func (p *PCAProjector) Decode(ctx context.Context, y mat.Matrix) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n, c := y.Dims()
	if c != 2 {
		return nil, fmt.Errorf("%w: decode expects 2 columns, got %d", errmap.ErrShapeMismatch, c)
	}
	out := mat.NewDense(n, p.Dim(), nil)
	out.Mul(y, p.basis.T())
	out.Apply(func(_, j int, v float64) float64 { return v + p.mean[j] }, out)
	return out, nil
}
