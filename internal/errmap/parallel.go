package errmap

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps goroutine overhead below the per-item work for small inputs.
const minChunk = 64

// resolveWorkers maps the configured worker count to a concrete one.
// Zero means one worker per available CPU.
func resolveWorkers(workers int) int {
	if workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return workers
}

// parallelFor calls fn over contiguous, disjoint index ranges covering
// [0, n) and returns once every range has finished. Each fn call must only
// write to indices inside its own range.
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	workers = resolveWorkers(workers)
	if workers == 1 || n <= minChunk {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
