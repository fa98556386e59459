// Package testutil provides shared test utilities and fixtures.
//
// This package centralises matrix assertions and synthetic point sets used
// by the estimator, generator and store tests.
package testutil

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertDims checks that m is rows×cols.
func AssertDims(t testing.TB, m mat.Matrix, rows, cols int) {
	t.Helper()
	if m == nil {
		t.Fatalf("matrix is nil, want %dx%d", rows, cols)
	}
	r, c := m.Dims()
	if r != rows || c != cols {
		t.Errorf("dims = %dx%d, want %dx%d", r, c, rows, cols)
	}
}

// AssertInRange checks that every element of m lies in [lo, hi].
func AssertInRange(t testing.TB, m mat.Matrix, lo, hi float64) {
	t.Helper()
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); v < lo || v > hi {
				t.Errorf("m[%d,%d] = %g, outside [%g, %g]", i, j, v, lo, hi)
			}
		}
	}
}

// LatticePoints returns resolution² 2D points on the integer lattice, row-major:
// sample k is (k/resolution, k%resolution).
func LatticePoints(resolution int) *mat.Dense {
	n := resolution * resolution
	m := mat.NewDense(n, 2, nil)
	for k := 0; k < n; k++ {
		m.Set(k, 0, float64(k/resolution))
		m.Set(k, 1, float64(k%resolution))
	}
	return m
}

// ZeroPad embeds m into dim columns, filling the extra columns with zeros.
func ZeroPad(m mat.Matrix, dim int) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, dim, nil)
	out.Slice(0, r, 0, c).(*mat.Dense).Copy(m)
	return out
}

// GridData builds row-major rows×cols×dim data with value f(i, j, d).
func GridData(rows, cols, dim int, f func(i, j, d int) float64) []float64 {
	data := make([]float64, 0, rows*cols*dim)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			for d := 0; d < dim; d++ {
				data = append(data, f(i, j, d))
			}
		}
	}
	return data
}
