package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-delve/dmcore/internal/callstack"
	"github.com/go-delve/dmcore/internal/heap"
	"github.com/go-delve/dmcore/internal/shadow"
)

const pageSize = 4096

// HeapContext carries the fields the heap-neighbourhood augmentation
// (spec §4.G.1) needs for an UnaddressableAccess report; it is nil for
// every other kind.
type HeapContext struct {
	Addr  uintptr
	Len   int
	Write bool
}

// Reporter assembles and emits the textual error/summary output (spec
// §4.G). It holds no locks of its own beyond Results' (spec §5: "Error
// table + counters + insertion list: one mutex; held only while
// de-duping and printing a prefix" — the accumulator's mutex is
// separate from Results' write mutex).
type Reporter struct {
	Results *File
	Shadow  *shadow.Map
	Heap    *heap.Table
	Pool    *callstack.Pool
}

// Emit formats and writes one error report. rec must already have an
// id assigned (via Accumulator.AssignID) unless suppressed, in which
// case the "SUPPRESSED" prefix is used instead of "Error #N:" (spec
// §4.G: "the word SUPPRESSED replaces the Error prefix for suppressed
// entries"). The prefix is computed only after the body is fully
// rendered, then the whole payload is written in one call (spec §4.G:
// "written after the body length is known, then the whole payload is
// emitted atomically to one file").
func (r *Reporter) Emit(rec *Record, threadID int, hc *HeapContext) {
	var body strings.Builder
	kindLine := fmt.Sprintf("%s: %s", rec.Kind, rec.Detail)
	fmt.Fprintf(&body, "%s\n", colorize(rec.Kind, rec.Suppressed, r.Results.tty, kindLine))
	fmt.Fprintf(&body, "%s Thread %d\n", time.Now().UTC().Format(time.RFC3339Nano), threadID)
	if hc != nil {
		body.WriteString(r.augmentHeap(*hc, threadID))
	}
	if r.Pool != nil && rec.Stack != callstack.NoStack {
		body.WriteString(r.Pool.Render(rec.Stack))
	}

	var prefix string
	if rec.Suppressed {
		prefix = "SUPPRESSED"
	} else {
		prefix = fmt.Sprintf("Error #%d", rec.ID)
	}

	r.Results.WriteAtomic([]byte(fmt.Sprintf("%s: %s", prefix, body.String())))
}

// heapRoutineDepth reports per-thread heap-routine nesting (spec
// §4.G.1: "whether the access occurred inside a heap routine (per-
// thread depth counter > 0 -> emit 'may be false positive')"). Despite
// being thread-local in spirit (spec §3 "Per-thread context"), the
// instrumentation engine calls Enter/Leave and augmentHeap from
// whichever OS thread happens to be running a given callback, so the
// map itself is accessed concurrently and needs its own mutex, the way
// GlobalState.regFiles guards per-thread register shadows with regMu.
var (
	heapRoutineMu    sync.Mutex
	heapRoutineDepth = map[int]int{}
)

// EnterHeapRoutine / LeaveHeapRoutine bracket a thread's time inside an
// instrumented allocator entry point (malloc/free/realloc), used by
// the augmentation below to flag accesses that are themselves caused
// by the allocator's own internal bookkeeping rather than application
// code.
func EnterHeapRoutine(threadID int) {
	heapRoutineMu.Lock()
	defer heapRoutineMu.Unlock()
	heapRoutineDepth[threadID]++
}

func LeaveHeapRoutine(threadID int) {
	heapRoutineMu.Lock()
	defer heapRoutineMu.Unlock()
	if heapRoutineDepth[threadID] > 0 {
		heapRoutineDepth[threadID]--
	}
}

func heapRoutineDepthOf(threadID int) int {
	heapRoutineMu.Lock()
	defer heapRoutineMu.Unlock()
	return heapRoutineDepth[threadID]
}

// augmentHeap implements spec §4.G.1: scan forward and backward up to
// one page for the next addressable byte, probe the heap-chunk map at
// each hit, and report nearest live neighbours, any overlapping
// delayed-free chunk, and the heap-routine depth flag.
func (r *Reporter) augmentHeap(hc HeapContext, threadID int) string {
	var b strings.Builder
	if r.Shadow == nil || r.Heap == nil {
		return ""
	}

	if lo, ok := r.Heap.NearestLive(hc.Addr, false); ok {
		fmt.Fprintf(&b, "  preceding live chunk: %#x-%#x\n", lo.Start, lo.End)
	}
	if hi, ok := r.Heap.NearestLive(hc.Addr, true); ok {
		fmt.Fprintf(&b, "  following live chunk: %#x-%#x\n", hi.Start, hi.End)
	}
	if dc, ok := r.Heap.OverlappingDelayed(hc.Addr); ok {
		fmt.Fprintf(&b, "  overlaps recently-freed chunk: %#x-%#x\n", dc.Start, dc.End)
	}

	if next, ok := scanForAddressable(r.Shadow, hc.Addr+uintptr(hc.Len), pageSize, true); ok {
		if c, ok := r.Heap.Enclosing(alignDown8(next)); ok {
			fmt.Fprintf(&b, "  next addressable region forward at %#x is chunk %#x-%#x (%s)\n", next, c.Start, c.End, c.Status)
		}
	}
	if prev, ok := scanForAddressable(r.Shadow, hc.Addr, pageSize, false); ok {
		if c, ok := r.Heap.Enclosing(alignDown8(prev)); ok {
			fmt.Fprintf(&b, "  next addressable region backward at %#x is chunk %#x-%#x (%s)\n", prev, c.Start, c.End, c.Status)
		}
	}

	if heapRoutineDepthOf(threadID) > 0 {
		b.WriteString("  access occurred inside a heap routine: may be false positive\n")
	}
	return b.String()
}

func alignDown8(addr uintptr) uintptr { return addr &^ 7 }

// scanForAddressable walks up to limit bytes from addr (forward if
// forward, else backward) looking for the first addressable byte.
func scanForAddressable(sm *shadow.Map, addr uintptr, limit int, forward bool) (uintptr, bool) {
	for i := 0; i < limit; i++ {
		var a uintptr
		if forward {
			a = addr + uintptr(i)
		} else {
			if uintptr(i) > addr {
				break
			}
			a = addr - uintptr(i) - 1
		}
		if sm.Get(a) != shadow.Unaddressable {
			return a, true
		}
	}
	return 0, false
}

// Summary renders the exit summary (spec §4.G: "per-kind unique/total
// counts, bytes leaked (direct vs indirect), suppression tallies,
// throttled counts, and a 'duplicate error counts' section").
func (a *Accumulator) Summary() string {
	var b strings.Builder
	b.WriteString("== dmcore summary ==\n")

	kinds := []Kind{UnaddressableAccess, UninitializedRead, InvalidHeapArg, Warning, Leak, PossibleLeak}
	for _, k := range kinds {
		unique, total, suppressed := a.kindTallies(k)
		fmt.Fprintf(&b, "%s: %d unique, %d total, %d suppressed, %d throttled\n",
			k, unique, total, suppressed, a.ThrottledCount(k))
	}

	direct, indirect := a.leakedBytes()
	fmt.Fprintf(&b, "bytes leaked: %d direct, %d indirect\n", direct, indirect)

	b.WriteString("duplicate error counts:\n")
	a.ForEachInIDOrder(func(r *Record) {
		if r.Count > 1 {
			fmt.Fprintf(&b, "  Error #%d: %d\n", r.ID, r.Count)
		}
	})
	return b.String()
}

// kindTallies returns (unique record count, total occurrence count,
// suppressed record count) for kind.
func (a *Accumulator) kindTallies(kind Kind) (unique, total, suppressed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, bucket := range a.buckets {
		for _, r := range bucket {
			if r.Kind != kind {
				continue
			}
			unique++
			total += r.Count
			if r.Suppressed {
				suppressed++
			}
		}
	}
	return unique, total, suppressed
}

// leakedBytes sums direct and indirect leaked bytes across every
// non-suppressed Leak/PossibleLeak record (SPEC_FULL.md §12.2).
func (a *Accumulator) leakedBytes() (direct, indirect int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, bucket := range a.buckets {
		for _, r := range bucket {
			if r.Suppressed || r.Leak == nil || !isLeakKind(r.Kind) {
				continue
			}
			if r.Leak.Direct {
				direct += r.Leak.Size
			} else {
				indirect += r.Leak.Size + r.Leak.IndirectSize
			}
		}
	}
	return direct, indirect
}
