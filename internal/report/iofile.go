package report

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/go-delve/dmcore/internal/logflags"
)

// File is a mutex-guarded sink for one results/log stream, with the
// "transient write failures are retried once then dropped" policy
// from spec §7 ("I/O errors ... writing logs: fatal for the open;
// transient write failures are retried once then dropped").
type File struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
}

// NewFile wraps an already-opened writer (the open itself, per spec
// §7, is fatal on failure and is the caller's responsibility). If w is
// a terminal, output is wrapped with go-colorable so the reporter's
// severity colouring renders correctly on every platform.
func NewFile(w io.Writer) *File {
	f, ok := w.(*os.File)
	tty := ok && isatty.IsTerminal(f.Fd())
	return &File{w: wrapForTerminal(w), tty: tty}
}

// WriteAtomic writes data as a single Write call, retrying exactly
// once on failure before logging and dropping it. It never returns an
// error: per spec §7, "no exceptions propagate out of the engine; all
// handler paths are total".
func (f *File) WriteAtomic(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.w.Write(data); err == nil {
		return
	}
	if _, err := f.w.Write(data); err != nil {
		logflags.Report().Warnf("dropped %d bytes after retry failed: %v", len(data), err)
	}
}
