// Package heap implements the heap-chunk table from spec §3 ("Heap
// chunk") and the delay-free queue from spec §4.A, plus the entry
// points (OnAlloc/OnFree/OnRealloc) a heap-wrapping collaborator (out of
// scope per spec §1) is expected to drive.
package heap

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-delve/dmcore/internal/callstack"
	"github.com/go-delve/dmcore/internal/shadow"
)

// Status is the lifecycle state of a heap chunk (spec §3).
type Status int

const (
	Live Status = iota
	PendingFree
	Freed
)

func (s Status) String() string {
	switch s {
	case Live:
		return "live"
	case PendingFree:
		return "pending-free"
	case Freed:
		return "freed"
	default:
		return "invalid"
	}
}

// Chunk records one heap allocation (spec §3: "{start, end, flags,
// stack_at_alloc, user_data}").
type Chunk struct {
	Start, End uintptr
	Status     Status
	Flags      uint32
	StackAlloc callstack.Handle
	UserData   any
}

// Size returns the number of bytes the chunk spans.
func (c *Chunk) Size() int { return int(c.End - c.Start) }

// Contains reports whether addr falls within [Start, End).
func (c *Chunk) Contains(addr uintptr) bool { return addr >= c.Start && addr < c.End }

// Table is the concurrency-safe heap chunk map (spec §5: "Heap-chunk
// map: reader-writer semantics; many concurrent lookups, serialised
// updates").
type Table struct {
	mu     sync.RWMutex
	byBase map[uintptr]*Chunk

	shadow *shadow.Map

	// delay is the bounded delay-free queue (spec glossary: "a FIFO of
	// recently freed heap chunks kept unaddressable for a bounded window
	// to detect use-after-free"). Implemented as an LRU so eviction age
	// is governed by allocation churn rather than wall-clock time,
	// matching the "bounded window" framing without needing a timer.
	delay *lru.Cache[uintptr, *Chunk]
}

// NewTable returns an empty heap chunk table. sm is the shadow map whose
// bytes are kept consistent with each chunk's lifecycle; delayWindow
// bounds how many recently freed chunks stay in the delay-free queue
// before being finally reclaimed.
func NewTable(sm *shadow.Map, delayWindow int) *Table {
	if delayWindow <= 0 {
		delayWindow = 1
	}
	t := &Table{
		byBase: make(map[uintptr]*Chunk),
		shadow: sm,
	}
	c, _ := lru.NewWithEvict[uintptr, *Chunk](delayWindow, func(_ uintptr, c *Chunk) {
		t.mu.Lock()
		if c.Status == PendingFree {
			c.Status = Freed
		}
		t.mu.Unlock()
	})
	t.delay = c
	return t
}

// OnAlloc registers a newly allocated chunk and marks its bytes
// Undefined in shadow memory (spec §4.A: "Heap allocations mark bytes
// Undefined").
func (t *Table) OnAlloc(start, end uintptr, stack callstack.Handle) *Chunk {
	c := &Chunk{Start: start, End: end, Status: Live, StackAlloc: stack}
	t.mu.Lock()
	t.byBase[start] = c
	t.mu.Unlock()
	if t.shadow != nil {
		t.shadow.MarkUndefined(start, int(end-start))
	}
	return c
}

// FreeResult classifies the outcome of OnFree, used by
// internal/engine to implement the invalid-heap-argument supplement
// (SPEC_FULL.md §12.1).
type FreeResult int

const (
	// FreeOK is a normal free of a live chunk.
	FreeOK FreeResult = iota
	// FreeNullPointer is freeing a NULL pointer (reported as a Warning,
	// not an error, per original_source/drmemory/report.c).
	FreeNullPointer
	// FreeUnknownPointer is freeing an address that is not a live
	// chunk's base (reported as InvalidHeapArg).
	FreeUnknownPointer
	// FreeDoubleFree is freeing a chunk that is already Freed or
	// PendingFree (reported as InvalidHeapArg).
	FreeDoubleFree
)

// OnFree transitions the chunk at addr to PendingFree, stages it on the
// delay-free queue, and marks its bytes Unaddressable (spec §4.A: "the
// delay-free queue keeps freed chunks Unaddressable ... for a bounded
// window to catch use-after-free").
func (t *Table) OnFree(addr uintptr) FreeResult {
	if addr == 0 {
		return FreeNullPointer
	}
	t.mu.Lock()
	c, ok := t.byBase[addr]
	if !ok {
		t.mu.Unlock()
		return FreeUnknownPointer
	}
	if c.Status != Live {
		t.mu.Unlock()
		return FreeDoubleFree
	}
	c.Status = PendingFree
	t.mu.Unlock()

	if t.shadow != nil {
		t.shadow.MarkUnaddressable(c.Start, c.Size())
	}

	t.delay.Add(addr, c)
	return FreeOK
}

// OnRealloc moves or resizes a chunk in place, preserving shadow state
// over the overlap (delegated to shadow.Map.Copy) and marking any
// growth Undefined.
func (t *Table) OnRealloc(oldAddr, newStart, newEnd uintptr, stack callstack.Handle) *Chunk {
	t.mu.Lock()
	old, ok := t.byBase[oldAddr]
	var oldSize int
	if ok {
		oldSize = old.Size()
		delete(t.byBase, oldAddr)
	}
	c := &Chunk{Start: newStart, End: newEnd, Status: Live, StackAlloc: stack}
	t.byBase[newStart] = c
	t.mu.Unlock()

	if t.shadow == nil {
		return c
	}
	newSize := int(newEnd - newStart)
	if ok && oldAddr != newStart {
		overlap := oldSize
		if newSize < overlap {
			overlap = newSize
		}
		t.shadow.Copy(oldAddr, newStart, overlap)
		t.shadow.MarkUnaddressable(oldAddr, oldSize)
		if newSize > overlap {
			t.shadow.MarkUndefined(newStart+uintptr(overlap), newSize-overlap)
		}
	} else if !ok {
		t.shadow.MarkUndefined(newStart, newSize)
	} else if newSize > oldSize {
		t.shadow.MarkUndefined(newStart+uintptr(oldSize), newSize-oldSize)
	}
	return c
}

// Lookup returns the chunk whose base address is exactly addr.
func (t *Table) Lookup(addr uintptr) (*Chunk, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byBase[addr]
	return c, ok
}

// Enclosing returns the live or pending-free chunk containing addr, if
// any, scanning the table (used sparingly: the reporter's heap
// neighbourhood augmentation, spec §4.G.1, only calls this at 8-byte
// aligned probe points within a one-page window, not on every access).
func (t *Table) Enclosing(addr uintptr) (*Chunk, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.byBase {
		if c.Status == Freed {
			continue
		}
		if c.Contains(addr) {
			return c, true
		}
	}
	return nil, false
}

// NearestLive returns the nearest live chunk starting at or above addr
// (forward) or ending at or below addr (!forward), used by the reporter to name "the
// preceding/following live chunk" in an unaddressable-access report
// (spec §4.G.1).
func (t *Table) NearestLive(addr uintptr, forward bool) (*Chunk, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var best *Chunk
	for _, c := range t.byBase {
		if c.Status != Live {
			continue
		}
		if forward {
			if c.Start >= addr && (best == nil || c.Start < best.Start) {
				best = c
			}
		} else {
			if c.End <= addr && (best == nil || c.End > best.End) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// OverlappingDelayed returns a recently-freed chunk overlapping addr, if
// one is still within the delay-free window (spec §4.G.1: "any
// overlapping delayed-free chunk").
func (t *Table) OverlappingDelayed(addr uintptr) (*Chunk, bool) {
	for _, key := range t.delay.Keys() {
		c, ok := t.delay.Peek(key)
		if ok && c.Status == PendingFree && c.Contains(addr) {
			return c, true
		}
	}
	return nil, false
}
