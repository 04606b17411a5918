// Package suppress implements the suppression engine from spec §4.F:
// the suppression-file parser and the wildcard prefix matcher against
// rendered callstacks, plus the suggested-suppressions sidecar.
package suppress

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-delve/dmcore/internal/logflags"
	"github.com/go-delve/dmcore/internal/report"
)

// Pattern is one frame pattern inside a suppression spec, pre-split on
// '*' at load time so match time is linear in total characters (spec
// §9 design note: "store per-kind as a vector of specs; each spec's
// frames as a vector of Segment sequences pre-split on '*'").
type Pattern struct {
	Raw      string
	Segments []string
	Anchored bool // true if Raw has no leading '*': the first segment is pinned to frame start
}

func newPattern(raw string) Pattern {
	return Pattern{
		Raw:      raw,
		Segments: strings.Split(raw, "*"),
		Anchored: !strings.HasPrefix(raw, "*"),
	}
}

// matchLine applies one Pattern to a single rendered frame line (never
// crossing into another line, per spec §4.F "rejecting if any segment
// crosses a frame boundary").
func (p Pattern) matchLine(line string) bool {
	pos := 0
	for i, seg := range p.Segments {
		if seg == "" {
			continue
		}
		if i == 0 && p.Anchored {
			if !strings.HasPrefix(line[pos:], seg) {
				return false
			}
			pos += len(seg)
			continue
		}
		idx := strings.Index(line[pos:], seg)
		if idx < 0 {
			return false
		}
		pos += idx + len(seg)
	}
	return true
}

// Spec is one suppression spec: a kind plus an ordered list of frame
// patterns that must form a prefix of a matching rendered stack (spec
// §3 "Suppression spec").
type Spec struct {
	Kind     report.Kind
	Symbolic bool
	Frames   []Pattern
}

// Matches reports whether rendered (a callstack.Render'd, "\n"-joined
// stack) matches s: the i-th pattern must match the i-th rendered
// frame, for all of s.Frames (spec §4.F "the spec matches if every
// frame matches and all N frames consumed; i.e., the spec is a prefix").
func (s Spec) Matches(rendered string) bool {
	rendered = strings.TrimRight(rendered, "\n")
	if rendered == "" {
		return len(s.Frames) == 0
	}
	lines := strings.Split(rendered, "\n")
	if len(s.Frames) > len(lines) {
		return false
	}
	for i, pat := range s.Frames {
		if !pat.matchLine(lines[i]) {
			return false
		}
	}
	return true
}

// LoadErr is a fatal suppression-file parse error (spec §7
// "Configuration errors ... fatal, report location and abort"), with
// the 1-based line number for the operator to fix.
type LoadErr struct {
	Line int
	Msg  string
}

func (e *LoadErr) Error() string { return fmt.Sprintf("suppression file line %d: %s", e.Line, e.Msg) }

// Load parses a suppression file (spec §6 grammar) into a per-kind
// list of Specs. Frames beyond maxFrames are dropped with a logged
// warning rather than failing the load (spec §4.F "Frames beyond the
// configured max frames are dropped with a warning").
func Load(r io.Reader, maxFrames int) (map[report.Kind][]Spec, error) {
	specs := make(map[report.Kind][]Spec)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	var cur *Spec
	var curForm *bool // nil until the first frame of the current stanza fixes the form

	flush := func() {
		if cur != nil {
			specs[cur.Kind] = append(specs[cur.Kind], *cur)
		}
		cur = nil
		curForm = nil
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if k, ok := report.KindFromHeader(trimmed); ok {
			flush()
			cur = &Spec{Kind: k}
			continue
		}
		if cur == nil {
			return nil, &LoadErr{Line: lineNo, Msg: "frame line before any kind header"}
		}

		symbolic, pattern, err := parseFrameLine(trimmed)
		if err != nil {
			return nil, &LoadErr{Line: lineNo, Msg: err.Error()}
		}
		if curForm == nil {
			curForm = new(bool)
			*curForm = symbolic
			cur.Symbolic = symbolic
		} else if *curForm != symbolic {
			return nil, &LoadErr{Line: lineNo, Msg: "mixed symbolic/offset frame forms in one suppression spec"}
		}

		if len(cur.Frames) >= maxFrames {
			logflags.Suppress().Warnf("suppression spec for %s exceeds %d frames, dropping %q", cur.Kind, maxFrames, trimmed)
			continue
		}
		cur.Frames = append(cur.Frames, newPattern(pattern))
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return specs, nil
}

// parseFrameLine classifies and normalises one frame line: offset form
// "<module+0xHEX>" or symbolic form "module!symbol", converting a '?'
// wildcard to '*' in symbolic frames (spec §6 "A ? in a symbolic frame
// is converted to *").
func parseFrameLine(line string) (symbolic bool, pattern string, err error) {
	switch {
	case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
		return false, line, nil
	case strings.Contains(line, "!"):
		return true, strings.ReplaceAll(line, "?", "*"), nil
	default:
		return false, "", fmt.Errorf("malformed frame line %q", line)
	}
}

// MatchAny reports whether any spec for kind matches rendered,
// returning the first matching Spec.
func MatchAny(specs map[report.Kind][]Spec, kind report.Kind, rendered string) (Spec, bool) {
	for _, s := range specs[kind] {
		if s.Matches(rendered) {
			return s, true
		}
	}
	return Spec{}, false
}

// Table bundles one run's loaded suppression specs with the sidecar
// that records suggested stanzas for anything that doesn't match
// (SPEC_FULL.md §12.3: a process fork keeps "the *same* suppress.Table"
// while the error accumulator and result files are reset fresh).
type Table struct {
	Specs   map[report.Kind][]Spec
	Sidecar *Sidecar
}

// LoadTable parses r into a Table, pairing it with sidecar (nil if no
// suggested-suppressions file was configured).
func LoadTable(r io.Reader, maxFrames int, sidecar *Sidecar) (*Table, error) {
	specs, err := Load(r, maxFrames)
	if err != nil {
		return nil, err
	}
	return &Table{Specs: specs, Sidecar: sidecar}, nil
}

// Match looks up a matching spec for kind against rendered, and — when
// none matches and a sidecar is configured — appends a suggested pair
// of stanzas built from renderedFrames/offsetFrames (spec §4.F).
func (t *Table) Match(kind report.Kind, rendered string, renderedFrames, offsetFrames []string) (Spec, bool) {
	if s, ok := MatchAny(t.Specs, kind, rendered); ok {
		return s, true
	}
	if t.Sidecar != nil {
		t.Sidecar.Suggest(kind, renderedFrames, offsetFrames)
	}
	return Spec{}, false
}
