// Package monitoring carries loader diagnostics.
//
// Loader binaries share their stdout with the visualization stream, so every
// diagnostic line goes through Logf, which writes to stderr by default and
// can be replaced or muted wholesale.
package monitoring

import (
	"log"
	"os"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugEnabled = os.Getenv("SCANSTREAM_DEBUG") != ""

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf only when SCANSTREAM_DEBUG is set in the
// environment or SetDebug(true) was called. Used for per-packet and
// per-record noise that would swamp normal diagnostics.
func Debugf(format string, v ...interface{}) {
	if debugEnabled {
		Logf(format, v...)
	}
}

// SetDebug toggles Debugf output regardless of the environment.
func SetDebug(enabled bool) {
	debugEnabled = enabled
}
