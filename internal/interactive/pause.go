// Package interactive implements the pause-at-error debugging aid from
// spec §6 ("pause_at_unaddressable, pause_at_uninitialized: interactive
// debugging aids"), which spec.md names as consumed configuration
// options but never designs (SPEC_FULL.md §11.5).
package interactive

import (
	"fmt"
	"io"
	"strings"

	liner "github.com/go-delve/liner"

	"github.com/go-delve/dmcore/internal/callstack"
	"github.com/go-delve/dmcore/internal/report"
)

// Prompter is the subset of *liner.State this package depends on,
// narrowed so tests can substitute a fake line source instead of
// driving a real terminal.
type Prompter interface {
	Prompt(string) (string, error)
	Close() error
}

// Pauser drops into an interactive prompt after an error is reported,
// offering to continue, reprint the stack, or quit (spec §6's
// "interactive debugging aid"). The zero value is not usable; build one
// with NewPauser.
type Pauser struct {
	prompt Prompter
	pool   *callstack.Pool
	out    io.Writer
}

// NewPauser wraps an already-open Prompter (typically *liner.NewLiner())
// and the callstack pool used to re-render a stack on request.
func NewPauser(prompt Prompter, pool *callstack.Pool, out io.Writer) *Pauser {
	return &Pauser{prompt: prompt, pool: pool, out: out}
}

// NewLinerPauser constructs a Pauser backed by a real go-delve/liner
// terminal session.
func NewLinerPauser(pool *callstack.Pool, out io.Writer) *Pauser {
	return NewPauser(liner.NewLiner(), pool, out)
}

// Action is what the operator chose at a pause prompt.
type Action int

const (
	// Continue resumes the target after the pause.
	Continue Action = iota
	// Quit is the operator's 'q' answer. Pause only returns it; it does
	// not stop the target process itself.
	Quit
)

// Pause blocks on an interactive prompt for rec, looping on 's' to
// reprint the stack, until the operator answers 'c' or 'q' (spec §6:
// "c (continue), s (print stack again), q (quit process)",
// SPEC_FULL.md §11.5).
func (p *Pauser) Pause(rec *report.Record) Action {
	fmt.Fprintf(p.out, "%s: %s (error #%d) -- paused\n", rec.Kind, rec.Detail, rec.ID)
	for {
		line, err := p.prompt.Prompt("dmcore (c/s/q)> ")
		if err != nil {
			// EOF or a closed terminal: treat as continue rather than
			// hanging the target forever.
			return Continue
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "s":
			if p.pool != nil {
				fmt.Fprint(p.out, p.pool.Render(rec.Stack))
			}
		case "q":
			return Quit
		case "c", "":
			return Continue
		default:
			fmt.Fprintf(p.out, "unrecognized command %q\n", line)
		}
	}
}

// Close releases the underlying prompt's resources.
func (p *Pauser) Close() error { return p.prompt.Close() }
