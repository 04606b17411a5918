package report

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// colorFor maps a Kind to the ANSI color the teacher's own terminal
// output uses for severity-coded lines: red for anything that is
// definitely a bug, yellow for advisory kinds. suppressed overrides
// either with dim, matching the "SUPPRESSED" prefix's reduced
// severity (SPEC_FULL.md §11.6).
func colorFor(k Kind) string {
	switch k {
	case Warning, PossibleLeak:
		return "\x1b[33m" // yellow
	default:
		return "\x1b[31m" // red
	}
}

const (
	colorReset = "\x1b[0m"
	colorDim   = "\x1b[2m"
)

// wrapForTerminal returns w unchanged unless it is a terminal (checked
// via isatty on the underlying *os.File), in which case it is wrapped
// with go-colorable so ANSI escapes render correctly on every platform
// the teacher ships for, including Windows consoles that otherwise
// need console-mode translation.
func wrapForTerminal(w io.Writer) io.Writer {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return w
	}
	return colorable.NewColorable(f)
}

// colorize wraps line in kind's color when tty is true; suppressed
// records are dimmed instead of colored by severity.
func colorize(kind Kind, suppressed, tty bool, line string) string {
	if !tty {
		return line
	}
	if suppressed {
		return fmt.Sprintf("%s%s%s", colorDim, line, colorReset)
	}
	return fmt.Sprintf("%s%s%s", colorFor(kind), line, colorReset)
}
