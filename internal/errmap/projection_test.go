package errmap

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/boundarymap/internal/testutil"
)

func TestNorms(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(3, 2, []float64{3, 4, 0, 0, -6, 8})
	assert.Equal(t, []float64{5, 0, 10}, Norms(m))
}

func TestRankByNorm(t *testing.T) {
	t.Parallel()

	t.Run("ascending", func(t *testing.T) {
		t.Parallel()
		m := mat.NewDense(4, 1, []float64{3, -1, 7, 2})
		assert.Equal(t, []int{1, 3, 0, 2}, RankByNorm(m))
	})

	t.Run("ties keep sample order", func(t *testing.T) {
		t.Parallel()
		// (1,0), (0,1) and (-1,0) are all at distance 1.
		m := mat.NewDense(4, 2, []float64{1, 0, 0, 0, 0, 1, -1, 0})
		assert.Equal(t, []int{1, 0, 2, 3}, RankByNorm(m))
	})
}

func TestNeighborWindow(t *testing.T) {
	t.Parallel()

	order := []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}
	k := 8

	tests := []struct {
		name string
		i    int
		want []int
	}{
		{"start", 0, order[0:9]},
		{"interior full window", 1, order[1:10]},
		{"at N-K truncates to K", 2, order[2:10]},
		{"past N-K uses tail", 3, order[1:]},
		{"last index uses tail", 9, order[1:]},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NeighborWindow(order, tc.i, k))
		})
	}
}

// N=10, K=8: i=9 is past N-K=2 and must use the last K+1 ranks, not the
// truncated slice starting at 9.
func TestNeighborWindow_BoundarySelection(t *testing.T) {
	t.Parallel()

	order := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	w := NeighborWindow(order, 9, 8)
	require.Len(t, w, 9)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, w)
}

func TestTrustworthiness(t *testing.T) {
	t.Parallel()

	identity := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
	swapped := []int{1, 0, 3, 2, 5, 4, 7, 6, 8}
	alternating := []int{0, 1, 0, 1, 0, 1, 0, 1, 0}

	t.Run("all K pairs match", func(t *testing.T) {
		t.Parallel()
		// 1 - (K-1)/(K-1)
		assert.Equal(t, 0.0, Trustworthiness(identity, identity, alternating, 0, 8))
	})

	t.Run("no pair matches exceeds one", func(t *testing.T) {
		t.Parallel()
		// 1 - (0-1)/(K-1) = K/(K-1)
		got := Trustworthiness(identity, swapped, alternating, 0, 8)
		assert.InDelta(t, 8.0/7.0, got, 1e-12)
		assert.Greater(t, got, 1.0)
	})

	t.Run("single match", func(t *testing.T) {
		t.Parallel()
		// Window [1:9]: only the final pair (8, 8) agrees.
		assert.Equal(t, 1.0, Trustworthiness(identity, swapped, alternating, 1, 8))
	})
}

func TestComputeProjectionErrors_Shape(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for _, res := range []int{3, 4, 10, 17} {
		n := res * res
		p2 := mat.NewDense(n, 2, nil)
		pNd := mat.NewDense(n, 6, nil)
		labels := make([]int, n)
		for k := 0; k < n; k++ {
			p2.Set(k, 0, rng.NormFloat64())
			p2.Set(k, 1, rng.NormFloat64())
			for d := 0; d < 6; d++ {
				pNd.Set(k, d, rng.NormFloat64())
			}
			labels[k] = rng.Intn(3)
		}

		got, err := ComputeProjectionErrors(p2, pNd, labels, res)
		require.NoError(t, err)
		testutil.AssertDims(t, got, res, res)
		// matches is in [0, K], so the error is in [0, K/(K-1)].
		testutil.AssertInRange(t, got, 0, 8.0/7.0)
	}
}

func TestComputeProjectionErrors_UniformLattice(t *testing.T) {
	t.Parallel()

	p2 := testutil.LatticePoints(4)
	pNd := testutil.ZeroPad(p2, 5)
	labels := make([]int, 16)

	got, err := ComputeProjectionErrors(p2, pNd, labels, 4)
	require.NoError(t, err)
	testutil.AssertDims(t, got, 4, 4)

	first := got.At(0, 0)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			assert.Equal(t, first, got.At(i, j), "cell (%d,%d)", i, j)
		}
	}
	assert.Equal(t, 0.0, first)
}

func TestComputeProjectionErrors_IdenticalSetsAlwaysAgree(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	p2 := mat.NewDense(25, 2, nil)
	labels := make([]int, 25)
	for k := 0; k < 25; k++ {
		p2.Set(k, 0, rng.Float64())
		p2.Set(k, 1, rng.Float64())
		labels[k] = rng.Intn(4)
	}

	// Same norms in both spaces give identical rank orderings, so every
	// compared pair is the same sample.
	got, err := ComputeProjectionErrors(p2, testutil.ZeroPad(p2, 3), labels, 5)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 25), got.RawMatrix().Data)
}

func TestComputeProjectionErrors_OutOfRangeValue(t *testing.T) {
	t.Parallel()

	// 2D ranks are the identity; nD ranks swap adjacent pairs.
	p2 := mat.NewDense(9, 2, nil)
	pNd := mat.NewDense(9, 3, nil)
	labels := make([]int, 9)
	for s := 0; s < 9; s++ {
		p2.Set(s, 0, float64(s))
		pos := s
		if s < 8 {
			pos = s ^ 1
		}
		pNd.Set(s, 0, float64(pos))
		labels[s] = s % 2
	}

	got, err := ComputeProjectionErrors(p2, pNd, labels, 3)
	require.NoError(t, err)

	over := 8.0 / 7.0
	want := []float64{over, 1, over, over, over, over, over, over, over}
	if diff := cmp.Diff(want, got.RawMatrix().Data, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("projection errors mismatch (-want +got):\n%s", diff)
	}
}

func TestComputeProjectionErrors_Errors(t *testing.T) {
	t.Parallel()

	p2 := testutil.LatticePoints(3)
	pNd := testutil.ZeroPad(p2, 4)
	labels := make([]int, 9)

	tests := []struct {
		name   string
		est    *ProjectionEstimator
		p2     mat.Matrix
		pNd    mat.Matrix
		labels []int
		res    int
		want   error
	}{
		{"N not resolution squared", NewProjectionEstimator(), p2, pNd, labels, 4, ErrShapeMismatch},
		{"nD rows differ", NewProjectionEstimator(), p2, mat.NewDense(8, 4, nil), labels, 3, ErrShapeMismatch},
		{"labels short", NewProjectionEstimator(), p2, pNd, labels[:8], 3, ErrShapeMismatch},
		{"2D has three columns", NewProjectionEstimator(), pNd.Slice(0, 9, 0, 3), pNd, labels, 3, ErrShapeMismatch},
		{"nil nD set", NewProjectionEstimator(), p2, nil, labels, 3, ErrShapeMismatch},
		{"K of one", &ProjectionEstimator{Neighbors: 1}, p2, pNd, labels, 3, ErrInvalidParameter},
		{"zero resolution", NewProjectionEstimator(), p2, pNd, labels, 0, ErrInvalidParameter},
		{"negative workers", &ProjectionEstimator{Neighbors: 8, Workers: -1}, p2, pNd, labels, 3, ErrInvalidParameter},
		{"fewer samples than K", &ProjectionEstimator{Neighbors: 10}, p2, pNd, labels, 3, ErrInvalidParameter},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.est.Compute(tc.p2, tc.pNd, tc.labels, tc.res)
			assert.Nil(t, got)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestProjectionEstimator_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	const res = 24
	n := res * res
	p2 := mat.NewDense(n, 2, nil)
	pNd := mat.NewDense(n, 8, nil)
	labels := make([]int, n)
	for k := 0; k < n; k++ {
		for d := 0; d < 2; d++ {
			p2.Set(k, d, rng.Float64())
		}
		for d := 0; d < 8; d++ {
			pNd.Set(k, d, rng.Float64())
		}
		labels[k] = rng.Intn(5)
	}

	seq, err := (&ProjectionEstimator{Neighbors: 8, Workers: 1}).Compute(p2, pNd, labels, res)
	require.NoError(t, err)
	par, err := (&ProjectionEstimator{Neighbors: 8, Workers: 4}).Compute(p2, pNd, labels, res)
	require.NoError(t, err)

	if diff := cmp.Diff(seq.RawMatrix().Data, par.RawMatrix().Data); diff != "" {
		t.Errorf("parallel result differs (-seq +par):\n%s", diff)
	}
}
