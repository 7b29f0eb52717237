// Package monitoring provides the process-wide diagnostic logger shared by
// the simulation, scoring, and storage packages. Long-running evaluations log
// through Logf so batch drivers can redirect or silence output per run.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or batch drivers can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that prepends "[tag] " to every message and
// forwards to the current Logf. The indirection is resolved at call time, so
// a later SetLogger also redirects previously created prefixed loggers.
func Prefixed(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+tag+"] "+format, v...)
	}
}
