package suppress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-delve/dmcore/internal/report"
)

// Sidecar is the "suggested-suppressions" file from spec §4.F: on a
// no-match, a machine-generated pair of stanzas (symbolic and offset
// forms) is appended so an operator can paste them back into a real
// suppression file. A dedicated mutex guards it, separate from the
// error-table mutex (spec §5 "Suppression sidecar file: dedicated
// mutex around the format-and-write").
type Sidecar struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSidecar wraps w (typically an *os.File opened for append).
func NewSidecar(w io.Writer) *Sidecar { return &Sidecar{w: w} }

// Suggest appends one commented, blank-line-separated pair of stanzas
// for kind: a symbolic-form stanza built from symbolicFrames, and an
// offset-form stanza built from offsetFrames, each already rendered as
// "module!symbol" / "<module+0xHEX>" lines in top-to-bottom stack
// order. This mirrors original_source/drmemory/report.c's suggestion
// formatting: a "#" comment naming the kind above each stanza, a blank
// line between stanzas.
func (s *Sidecar) Suggest(kind report.Kind, symbolicFrames, offsetFrames []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# suggested suppression for %s\n", kind)
	fmt.Fprintf(&b, "%s\n", kind)
	for _, f := range symbolicFrames {
		fmt.Fprintf(&b, "%s\n", f)
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "# suggested suppression for %s (offset form)\n", kind)
	fmt.Fprintf(&b, "%s\n", kind)
	for _, f := range offsetFrames {
		fmt.Fprintf(&b, "%s\n", f)
	}
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, b.String())
	return err
}
