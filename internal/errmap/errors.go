package errmap

import "errors"

// Sentinel errors. Callers match them with errors.Is; returned errors wrap
// them with the offending shapes or values.
var (
	// ErrShapeMismatch is returned when input arrays violate the shape
	// preconditions: N != resolution², differing sample counts between the
	// 2D set, the nD set and the labels, or an inconsistent nD grid.
	ErrShapeMismatch = errors.New("errmap: shape mismatch")

	// ErrDegenerateRange is returned by normalisation when every cell holds
	// the same value, so max - min is zero.
	ErrDegenerateRange = errors.New("errmap: degenerate value range")

	// ErrInvalidParameter is returned for K <= 1, resolution <= 0, a negative
	// worker count, too few samples for one neighbourhood, or non-finite input.
	ErrInvalidParameter = errors.New("errmap: invalid parameter")
)
