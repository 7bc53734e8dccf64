// Package color provides terminal color output for the securelock CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/) and
// only colors writers attached to a terminal.
package color

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

var disabled atomic.Bool

// Init applies the environment and the --no-color flag.
func Init(noColorFlag bool) {
	_, noColorEnv := os.LookupEnv("NO_COLOR")
	disabled.Store(noColorFlag || noColorEnv || os.Getenv("TERM") == "dumb")
}

// Enabled reports whether output to w should be colored.
func Enabled(w io.Writer) bool {
	if disabled.Load() {
		return false
	}
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ANSI color codes
const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	DimCode = "\033[2m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Cyan    = "\033[36m"
)

// Painter colors text for one writer.
type Painter struct {
	on bool
}

// For returns a painter for w.
func For(w io.Writer) Painter {
	return Painter{on: Enabled(w)}
}

func (p Painter) wrap(code, s string) string {
	if !p.on {
		return s
	}
	return code + s + Reset
}

// Success formats a success message in green.
func (p Painter) Success(s string) string { return p.wrap(Green, s) }

// Error formats an error message in red.
func (p Painter) Error(s string) string { return p.wrap(Red, s) }

// Warning formats a warning message in yellow.
func (p Painter) Warning(s string) string { return p.wrap(Yellow, s) }

// Info formats an informational message in cyan.
func (p Painter) Info(s string) string { return p.wrap(Cyan, s) }

// Dim formats secondary information.
func (p Painter) Dim(s string) string { return p.wrap(DimCode, s) }

// Header formats a header in bold.
func (p Painter) Header(s string) string { return p.wrap(Bold, s) }

// Severity colors a doctor severity label.
func (p Painter) Severity(s string) string {
	switch s {
	case "critical", "error":
		return p.Error(s)
	case "warning":
		return p.Warning(s)
	default:
		return p.Info(s)
	}
}
