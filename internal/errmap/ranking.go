package errmap

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Norms returns the Euclidean norm of every row of m, i.e. each sample's
// distance from the coordinate origin.
func Norms(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, m)
		out[i] = floats.Norm(row, 2)
	}
	return out
}

// RankByNorm returns the permutation that sorts the rows of m by ascending
// distance from the origin. Ties keep their original sample order.
func RankByNorm(m mat.Matrix) []int {
	return argsort(Norms(m))
}

// argsort returns the ascending stable sort permutation of v without
// modifying it.
func argsort(v []float64) []int {
	sorted := make([]float64, len(v))
	copy(sorted, v)
	inds := make([]int, len(v))
	floats.ArgsortStable(sorted, inds)
	return inds
}

// NeighborWindow returns the rank window used for sample position i.
// For i <= len(order)-k the window starts at i and holds up to k+1 entries,
// truncated at the end of order (so i == len(order)-k yields exactly k).
// Otherwise it is the last k+1 entries of order. The returned slice aliases
// order.
func NeighborWindow(order []int, i, k int) []int {
	n := len(order)
	if i > n-k {
		lo := n - k - 1
		if lo < 0 {
			lo = 0
		}
		return order[lo:]
	}
	hi := i + k + 1
	if hi > n {
		hi = n
	}
	return order[i:hi]
}

// euclidean is the L2 distance between two equal-length vectors.
func euclidean(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}
