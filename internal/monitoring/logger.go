package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Debugf is the verbose logger for per-tick playback tracing. It is a no-op
// until SetDebug(true); replay loops call it every frame, so it must stay
// cheap when disabled.
var Debugf func(format string, v ...interface{}) = discard

func discard(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug routes Debugf through the package logger when enabled and back to
// a no-op when disabled.
func SetDebug(enabled bool) {
	if enabled {
		Debugf = func(format string, v ...interface{}) {
			Logf("[debug] "+format, v...)
		}
		return
	}
	Debugf = discard
}
