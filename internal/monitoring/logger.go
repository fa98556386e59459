// Package monitoring holds the diagnostic logger shared by the boundary map
// packages.
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// now is swapped in tests.
var now = time.Now

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage logs the start of a named step for component and returns a func
// that logs its completion with the elapsed time:
//
//	defer monitoring.Stage("Generator", "decode 2D -> nD")()
func Stage(component, name string) func() {
	start := now()
	Logf("[%s] %s", component, name)
	return func() {
		Logf("[%s] %s done in %s", component, name, now().Sub(start).Round(time.Microsecond))
	}
}
