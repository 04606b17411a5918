package interactive

import (
	"strings"
	"testing"

	"github.com/go-delve/dmcore/internal/callstack"
	"github.com/go-delve/dmcore/internal/report"
)

type scriptedPrompt struct {
	lines  []string
	i      int
	closed bool
}

func (s *scriptedPrompt) Prompt(string) (string, error) {
	if s.i >= len(s.lines) {
		return "", errEOF
	}
	l := s.lines[s.i]
	s.i++
	return l, nil
}

func (s *scriptedPrompt) Close() error { s.closed = true; return nil }

type eofErr struct{}

func (eofErr) Error() string { return "EOF" }

var errEOF error = eofErr{}

func TestPauseContinuesOnC(t *testing.T) {
	var out strings.Builder
	p := NewPauser(&scriptedPrompt{lines: []string{"c"}}, nil, &out)
	rec := &report.Record{ID: 1, Kind: report.UnaddressableAccess, Detail: "reading 0x1000"}

	if got := p.Pause(rec); got != Continue {
		t.Fatalf("got %v, want Continue", got)
	}
	if !strings.Contains(out.String(), "error #1") {
		t.Fatalf("expected the error header to be printed: %q", out.String())
	}
}

func TestPauseQuitsOnQ(t *testing.T) {
	var out strings.Builder
	p := NewPauser(&scriptedPrompt{lines: []string{"q"}}, nil, &out)
	rec := &report.Record{ID: 2, Kind: report.Warning, Detail: "null pointer"}

	if got := p.Pause(rec); got != Quit {
		t.Fatalf("got %v, want Quit", got)
	}
}

func TestPauseReprintsStackOnS(t *testing.T) {
	pool := callstack.NewPool(8)
	stack := pool.Intern([]callstack.Frame{{Module: "m", Symbol: "foo"}})

	var out strings.Builder
	p := NewPauser(&scriptedPrompt{lines: []string{"s", "c"}}, pool, &out)
	rec := &report.Record{ID: 3, Kind: report.Leak, Detail: "128 bytes", Stack: stack}

	if got := p.Pause(rec); got != Continue {
		t.Fatalf("got %v, want Continue", got)
	}
	if !strings.Contains(out.String(), "foo") {
		t.Fatalf("expected the re-rendered stack to mention the symbol: %q", out.String())
	}
}

func TestPauseDefaultsToContinueOnEOF(t *testing.T) {
	var out strings.Builder
	p := NewPauser(&scriptedPrompt{}, nil, &out)
	rec := &report.Record{ID: 4, Kind: report.UninitializedRead, Detail: "x"}

	if got := p.Pause(rec); got != Continue {
		t.Fatalf("got %v, want Continue on prompt EOF", got)
	}
}

func TestCloseDelegatesToPrompter(t *testing.T) {
	sp := &scriptedPrompt{}
	p := NewPauser(sp, nil, &strings.Builder{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sp.closed {
		t.Fatalf("expected the underlying prompt to be closed")
	}
}
