// Package report implements the error accumulator (spec §4.E) and the
// reporter (spec §4.G): the de-duplicated error table and the formatted
// per-error and summary output. Suppression matching lives in
// internal/suppress.
package report

import "github.com/go-delve/dmcore/internal/callstack"

// Kind enumerates the detected-bug taxonomy (spec §3: "kind ∈
// {UnaddressableAccess, UninitializedRead, InvalidHeapArg, Warning,
// Leak, PossibleLeak}"), distinct from the internal tool-error
// taxonomy in spec §7.
type Kind int

const (
	UnaddressableAccess Kind = iota
	UninitializedRead
	InvalidHeapArg
	Warning
	Leak
	PossibleLeak
)

// headerName is the canonical uppercase suppression-file header for
// each kind (spec §6 grammar).
var headerName = map[Kind]string{
	UnaddressableAccess: "UNADDRESSABLE ACCESS",
	UninitializedRead:   "UNINITIALIZED READ",
	InvalidHeapArg:      "INVALID HEAP ARGUMENT",
	Warning:             "WARNING",
	Leak:                "LEAK",
	PossibleLeak:        "POSSIBLE LEAK",
}

func (k Kind) String() string {
	if s, ok := headerName[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// kindByHeader is the inverse of headerName, built once at init for
// the suppression-file parser.
var kindByHeader = func() map[string]Kind {
	m := make(map[string]Kind, len(headerName))
	for k, name := range headerName {
		m[name] = k
	}
	return m
}()

// KindFromHeader resolves a suppression-file header line back to its
// Kind.
func KindFromHeader(header string) (Kind, bool) {
	k, ok := kindByHeader[header]
	return k, ok
}

// Record is one de-duplicated error-table entry (spec §3: "{id, kind,
// count, suppressed, stack}").
type Record struct {
	ID         int
	Kind       Kind
	Count      int
	Suppressed bool
	Stack      callstack.Handle

	// Detail is the kind-specific body line rendered under the kind
	// header (e.g. "writing 0x1010-0x1011 1 byte(s)"). Only the first
	// occurrence's detail is kept, matching spec §4.G's "for each fresh
	// error" wording.
	Detail string

	// Leak holds the direct/indirect classification for Leak and
	// PossibleLeak records (SPEC_FULL.md §12.2); nil for every other
	// kind.
	Leak *LeakInfo
}

// LeakInfo distinguishes bytes leaked directly (nothing points to the
// block) from indirectly (reachable only through another leaked
// block), filled in by the leak scanner's report_leak callback
// (SPEC_FULL.md §12.2; leak scanning itself is out of scope per spec
// §1, only this data shape is).
type LeakInfo struct {
	Direct       bool
	Size         int
	IndirectSize int
}
