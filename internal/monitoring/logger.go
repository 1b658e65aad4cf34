// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"fmt"
	"log"
	"sync/atomic"
)

const (
	termGreen = "\x1b[0;32m"
	termRed   = "\x1b[0;31m"
	termOff   = "\x1b[0m"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var (
	processName atomic.Value // string
	colour      atomic.Bool
)

func init() {
	processName.Store("")
	colour.Store(true)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetProcessName sets the tag that prefixes Goodf and Badf lines, normally the
// stage name so interleaved stderr from a pipeline stays attributable.
func SetProcessName(name string) {
	processName.Store(name)
}

// SetColour enables or disables ANSI colour on the process tag.
func SetColour(on bool) {
	colour.Store(on)
}

// Goodf logs a success line with a green process tag.
func Goodf(format string, v ...interface{}) {
	Logf("%s %s", tag(termGreen), fmt.Sprintf(format, v...))
}

// Badf logs a failure line with a red process tag.
func Badf(format string, v ...interface{}) {
	Logf("%s %s", tag(termRed), fmt.Sprintf(format, v...))
}

func tag(c string) string {
	name, _ := processName.Load().(string)
	if !colour.Load() {
		return "[" + name + "]"
	}
	return c + "[" + name + "]" + termOff
}
