package errmap

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/boundarymap/internal/testutil"
)

func TestGridFromRows(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(6, 2, []float64{
		0, 1,
		2, 3,
		4, 5,
		6, 7,
		8, 9,
		10, 11,
	})
	g, err := GridFromRows(m, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Rows)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, 2, g.Dim)
	assert.Equal(t, []float64{2, 3}, g.At(0, 1))
	assert.Equal(t, []float64{6, 7}, g.At(1, 0))
	assert.Equal(t, []float64{10, 11}, g.At(1, 2))

	_, err = GridFromRows(m, 2, 2)
	assert.True(t, errors.Is(err, ErrShapeMismatch))
	_, err = GridFromRows(m, 0, 6)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestGridND_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		grid *GridND
		want error
	}{
		{"nil", nil, ErrShapeMismatch},
		{"zero dim", &GridND{Rows: 2, Cols: 2, Dim: 0}, ErrShapeMismatch},
		{"short data", &GridND{Rows: 2, Cols: 2, Dim: 1, Data: []float64{1, 2, 3}}, ErrShapeMismatch},
		{"NaN", &GridND{Rows: 1, Cols: 2, Dim: 1, Data: []float64{1, math.NaN()}}, ErrInvalidParameter},
		{"Inf", &GridND{Rows: 1, Cols: 2, Dim: 1, Data: []float64{math.Inf(1), 0}}, ErrInvalidParameter},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.grid.Validate()
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}

	ok := &GridND{Rows: 1, Cols: 1, Dim: 2, Data: []float64{0, 0}}
	assert.NoError(t, ok.Validate())
}

// A 3x3 grid with a single spike at (0,1). Dividing by the true neighbour
// count separates corners (2), edges (3) and the centre (4).
func TestInverseProjection_NeighborCounts(t *testing.T) {
	t.Parallel()

	data := testutil.GridData(3, 3, 1, func(i, j, _ int) float64 {
		if i == 0 && j == 1 {
			return 8
		}
		return 0
	})
	g, err := NewGridND(3, 3, 1, data)
	require.NoError(t, err)

	raw, err := (&InverseProjectionEstimator{Workers: 1}).Raw(g)
	require.NoError(t, err)

	assert.Equal(t, 4.0, raw.At(0, 0), "corner averages 2 distances")
	assert.Equal(t, 4.0, raw.At(0, 2), "corner averages 2 distances")
	assert.Equal(t, 8.0, raw.At(0, 1), "edge averages 3 distances")
	assert.Equal(t, 2.0, raw.At(1, 1), "centre averages 4 distances")
	assert.Equal(t, 0.0, raw.At(1, 0))
	assert.Equal(t, 0.0, raw.At(2, 2))
}

func TestInverseProjection_EuclideanInND(t *testing.T) {
	t.Parallel()

	// 1x2 grid: each cell has one neighbour at distance 5.
	g, err := NewGridND(1, 2, 2, []float64{0, 0, 3, 4})
	require.NoError(t, err)
	raw, err := (&InverseProjectionEstimator{}).Raw(g)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5}, raw.RawMatrix().Data)
}

func TestComputeInverseProjectionErrors_Bounded(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	for _, res := range []int{2, 5, 16, 33} {
		data := testutil.GridData(res, res, 7, func(_, _, _ int) float64 {
			return rng.NormFloat64()
		})
		g, err := NewGridND(res, res, 7, data)
		require.NoError(t, err)

		got, err := ComputeInverseProjectionErrors(g)
		require.NoError(t, err)
		testutil.AssertDims(t, got, res, res)
		testutil.AssertInRange(t, got, 0, 1)

		values := got.RawMatrix().Data
		assert.Contains(t, values, 0.0, "res %d: minimum maps to 0", res)
		assert.Contains(t, values, 1.0, "res %d: maximum maps to 1", res)
	}
}

func TestComputeInverseProjectionErrors_DegenerateRange(t *testing.T) {
	t.Parallel()

	t.Run("identical cells", func(t *testing.T) {
		t.Parallel()
		data := testutil.GridData(4, 4, 3, func(_, _, d int) float64 { return float64(d) })
		g, err := NewGridND(4, 4, 3, data)
		require.NoError(t, err)

		got, err := ComputeInverseProjectionErrors(g)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, ErrDegenerateRange), "got %v", err)

		raw, err := (&InverseProjectionEstimator{}).Raw(g)
		require.NoError(t, err)
		assert.Equal(t, make([]float64, 16), raw.RawMatrix().Data)
	})

	t.Run("single cell", func(t *testing.T) {
		t.Parallel()
		g, err := NewGridND(1, 1, 2, []float64{1, 2})
		require.NoError(t, err)
		_, err = ComputeInverseProjectionErrors(g)
		assert.True(t, errors.Is(err, ErrDegenerateRange), "got %v", err)
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	m := mat.NewDense(2, 2, []float64{2, 4, 6, 10})
	require.NoError(t, Normalize(m))
	want := []float64{0, 0.25, 0.5, 1}
	if diff := cmp.Diff(want, m.RawMatrix().Data, cmpopts.EquateApprox(0, 1e-15)); diff != "" {
		t.Errorf("normalised values mismatch (-want +got):\n%s", diff)
	}

	flat := mat.NewDense(1, 3, []float64{7, 7, 7})
	err := Normalize(flat)
	assert.True(t, errors.Is(err, ErrDegenerateRange))
	assert.Equal(t, []float64{7, 7, 7}, flat.RawMatrix().Data, "flat field left untouched")

	assert.True(t, errors.Is(Normalize(nil), ErrShapeMismatch))
}

func TestInverseProjection_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(5))
	const res = 96
	data := testutil.GridData(res, res, 4, func(_, _, _ int) float64 { return rng.Float64() })
	g, err := NewGridND(res, res, 4, data)
	require.NoError(t, err)

	seq, err := (&InverseProjectionEstimator{Workers: 1}).Compute(g)
	require.NoError(t, err)
	par, err := (&InverseProjectionEstimator{Workers: 8}).Compute(g)
	require.NoError(t, err)

	if diff := cmp.Diff(seq.RawMatrix().Data, par.RawMatrix().Data); diff != "" {
		t.Errorf("parallel result differs (-seq +par):\n%s", diff)
	}
}

func TestInverseProjection_NegativeWorkers(t *testing.T) {
	t.Parallel()

	g, err := NewGridND(2, 2, 1, []float64{0, 1, 2, 3})
	require.NoError(t, err)
	_, err = (&InverseProjectionEstimator{Workers: -2}).Compute(g)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}
