package report

import (
	"sort"
	"sync"

	"github.com/go-delve/dmcore/internal/callstack"
)

type bucketKey struct {
	kind Kind
	hash uint64
}

// isLeakKind reports whether k belongs to the "leak" throttling class
// (spec §4.E: "two limits, report_max for non-leak errors and
// report_leak_max for leaks").
func isLeakKind(k Kind) bool { return k == Leak || k == PossibleLeak }

// Accumulator is the concurrency-safe de-dup table from spec §4.E. A
// single mutex protects the table, insertion-order list and per-kind
// counters, matching the "duplicate-check path is the common case,
// expected to be O(hash-lookup)" requirement: the hot path is a map
// lookup plus a short bucket scan for hash-collision disambiguation.
type Accumulator struct {
	mu   sync.Mutex
	pool *callstack.Pool

	buckets map[bucketKey][]*Record
	order   []*Record // insertion order, for iteration and dup-count summaries
	nextID  int

	numTotal  map[Kind]int
	throttled map[Kind]int

	reportMax     int
	reportLeakMax int
	renderedOther int
	renderedLeak  int
}

// NewAccumulator returns an empty table. reportMax/reportLeakMax < 0
// mean unlimited (spec §6: "report_max, report_leak_max: throttling
// thresholds; < 0 means unlimited").
func NewAccumulator(pool *callstack.Pool, reportMax, reportLeakMax int) *Accumulator {
	return &Accumulator{
		pool:          pool,
		buckets:       make(map[bucketKey][]*Record),
		numTotal:      make(map[Kind]int),
		throttled:     make(map[Kind]int),
		reportMax:     reportMax,
		reportLeakMax: reportLeakMax,
	}
}

// Record inserts or finds the record keyed by (kind, stack), bumping
// its count and, unless it is already suppressed, the per-kind total
// (spec §4.E "record(kind, stack) -> (record_handle, first_occurrence)").
// stack is cloned into the record on first insertion; callers keep
// their own handle and must still Release it.
func (a *Accumulator) Record(kind Kind, stack callstack.Handle) (rec *Record, firstOccurrence bool) {
	hash := a.pool.Hash(stack)
	key := bucketKey{kind: kind, hash: hash}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.buckets[key] {
		if a.pool.Eq(r.Stack, stack) {
			r.Count++
			if !r.Suppressed {
				a.numTotal[kind]++
			}
			return r, false
		}
	}

	r := &Record{Kind: kind, Count: 1, Stack: a.pool.Clone(stack)}
	a.buckets[key] = append(a.buckets[key], r)
	a.numTotal[kind]++
	return r, true
}

// AssignID assigns the next monotonic id to r if it doesn't have one
// yet (spec §4.E "assign_id(record) — monotonic counter, called only
// on first non-suppressed occurrence"). Calling it again on an
// already-assigned record is a no-op and returns the existing id.
func (a *Accumulator) AssignID(r *Record) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.ID != 0 {
		return r.ID
	}
	a.nextID++
	r.ID = a.nextID
	a.order = append(a.order, r)
	return r.ID
}

// MarkSuppressed marks r suppressed, idempotently, and decrements the
// per-kind total the first time it is called (spec §4.E
// "mark_suppressed(record) — idempotent; also decrements num_total[kind]").
func (a *Accumulator) MarkSuppressed(r *Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Suppressed {
		return
	}
	r.Suppressed = true
	a.numTotal[r.Kind]--
}

// ShouldRender applies the report_max/report_leak_max throttle (spec
// §4.E "Throttling"): the first reportMax (or reportLeakMax, for leak
// kinds) first-occurrence non-suppressed errors render; the rest bump
// the throttled counter and are not rendered, though they remain
// duplicate-checked via Record above.
func (a *Accumulator) ShouldRender(kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if isLeakKind(kind) {
		if a.reportLeakMax >= 0 && a.renderedLeak >= a.reportLeakMax {
			a.throttled[kind]++
			return false
		}
		a.renderedLeak++
		return true
	}
	if a.reportMax >= 0 && a.renderedOther >= a.reportMax {
		a.throttled[kind]++
		return false
	}
	a.renderedOther++
	return true
}

// ThrottledCount returns how many kind errors were suppressed from
// rendering by the throttle, for the exit summary.
func (a *Accumulator) ThrottledCount(kind Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.throttled[kind]
}

// NumTotal returns the current non-suppressed total for kind.
func (a *Accumulator) NumTotal(kind Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numTotal[kind]
}

// ForEachInIDOrder iterates assigned records in id-assignment order
// (spec §4.E "for_each_in_id_order(fn) — iteration for summary output").
func (a *Accumulator) ForEachInIDOrder(fn func(*Record)) {
	a.mu.Lock()
	ordered := make([]*Record, len(a.order))
	copy(ordered, a.order)
	a.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, r := range ordered {
		fn(r)
	}
}

// Checkpoint is a saved snapshot of the leak-related counters and
// per-record leak counts (spec §4.E "checkpoint() / revert() ... to
// support repeated leak scans during a run without double-counting").
type Checkpoint struct {
	numTotalLeak         int
	numTotalPossibleLeak int
	throttledLeak        int
	throttledPossible    int
	renderedLeak         int
	counts               map[*Record]int
}

// Checkpoint saves the current leak-kind counters and every leak-kind
// record's count, for later Revert.
func (a *Accumulator) Checkpoint() Checkpoint {
	a.mu.Lock()
	defer a.mu.Unlock()

	cp := Checkpoint{
		numTotalLeak:         a.numTotal[Leak],
		numTotalPossibleLeak: a.numTotal[PossibleLeak],
		throttledLeak:        a.throttled[Leak],
		throttledPossible:    a.throttled[PossibleLeak],
		renderedLeak:         a.renderedLeak,
		counts:               make(map[*Record]int),
	}
	for _, bucket := range a.buckets {
		for _, r := range bucket {
			if isLeakKind(r.Kind) {
				cp.counts[r] = r.Count
			}
		}
	}
	return cp
}

// Revert restores the leak-related state saved by a prior Checkpoint,
// discarding any leak-kind record() calls made since (a re-scan that
// found the same leaks must not double the counts).
func (a *Accumulator) Revert(cp Checkpoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.numTotal[Leak] = cp.numTotalLeak
	a.numTotal[PossibleLeak] = cp.numTotalPossibleLeak
	a.throttled[Leak] = cp.throttledLeak
	a.throttled[PossibleLeak] = cp.throttledPossible
	a.renderedLeak = cp.renderedLeak
	for r, count := range cp.counts {
		r.Count = count
	}
}

// Reset clears the table entirely, used for the process-fork re-init
// hook (spec §5 "A process-fork hook resets per-process counters and
// the error table (children do not inherit parent errors); stacks and
// suppression specs are retained").
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make(map[bucketKey][]*Record)
	a.order = nil
	a.nextID = 0
	a.numTotal = make(map[Kind]int)
	a.throttled = make(map[Kind]int)
	a.renderedOther = 0
	a.renderedLeak = 0
}
