// Package shadow implements the two-level shadow-memory map (spec §3,
// §4.A): a directory of fixed-size leaves, each holding one State byte
// per application byte, with shared leaves for the common
// all-unaddressable and all-defined cases.
package shadow

import (
	"sync"
	"sync/atomic"
)

// State is the per-byte shadow value (spec §3).
type State byte

const (
	// Unaddressable memory the process may not touch without trapping.
	Unaddressable State = iota
	// Undefined addressable memory holding leftover allocator bytes.
	Undefined
	// Defined addressable memory holding a value the program wrote.
	Defined
	// DefinedButUninitializedRead marks memory that was defined but is
	// known to have been read once while still uninitialized upstream
	// (used to avoid re-reporting the same byte on every subsequent read).
	DefinedButUninitializedRead
)

func (s State) String() string {
	switch s {
	case Unaddressable:
		return "unaddressable"
	case Undefined:
		return "undefined"
	case Defined:
		return "defined"
	case DefinedButUninitializedRead:
		return "defined-but-uninitialized-read"
	default:
		return "invalid"
	}
}

const (
	// pageBits is the number of address bits covered by one leaf: a
	// leaf covers 4 KiB of application memory, one byte of shadow state
	// per application byte (spec §3: "4 KiB shadow-bytes-per-page").
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1

	// dirBits sizes the in-slice directory: it is indexed by the page
	// number (addr >> pageBits) and holds 1<<dirBits entries, so it
	// covers the low 4 GiB of address space without the full 64-bit span
	// being materialized. Pages above that are kept in the overflow map,
	// and pages with no installed leaf read as the shared unaddressable
	// leaf.
	dirBits = 20
	dirSize = 1 << dirBits
)

// leaf is one page's worth of shadow bytes. Bytes are updated with
// plain (non-atomic-struct) stores; racy writes between threads are
// accepted per spec §5 ("lost updates can at worst hide a report").
type leaf struct {
	bytes [pageSize]State
}

var (
	allUnaddressable = &leaf{}
	allDefined       = &leaf{}
)

func init() {
	for i := range allDefined.bytes {
		allDefined.bytes[i] = Defined
	}
}

// Map is a two-level shadow memory map. The zero value is not usable;
// construct with New.
type Map struct {
	mu  sync.Mutex // guards installation (CAS loop) and the overflow map
	dir []atomic.Pointer[leaf]
	// overflow holds leaves for directory indices beyond dirSize, keyed
	// by directory index. Accesses to it are serialized by mu; this is
	// expected to be rare (very sparse high addresses) so a mutex-backed
	// map is an acceptable cost next to the lock-free common path.
	overflow map[uint64]*atomic.Pointer[leaf]
}

// New returns an empty shadow map where every byte reads Unaddressable.
func New() *Map {
	m := &Map{
		dir:      make([]atomic.Pointer[leaf], dirSize),
		overflow: make(map[uint64]*atomic.Pointer[leaf]),
	}
	return m
}

func dirIndex(addr uintptr) uint64 {
	return uint64(addr) >> pageBits
}

func pageOffset(addr uintptr) uintptr {
	return addr & pageMask
}

// slot returns the directory slot for addr, creating the overflow entry
// if this index falls outside the fast in-slice directory. The returned
// pointer is never nil (the invariant from spec §3: "reading any leaf
// pointer yields a non-null leaf" is actually enforced one level up, in
// leafFor, where a nil *leaf is mapped to allUnaddressable).
func (m *Map) slot(idx uint64) *atomic.Pointer[leaf] {
	if idx < dirSize {
		return &m.dir[idx]
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.overflow[idx]
	if !ok {
		s = &atomic.Pointer[leaf]{}
		m.overflow[idx] = s
	}
	return s
}

// leafFor returns the leaf covering addr. If none has been installed yet
// it returns the shared allUnaddressable leaf without installing
// anything (a read-only fast path); installLeaf is used by writers.
func (m *Map) leafFor(addr uintptr) *leaf {
	s := m.slot(dirIndex(addr))
	l := s.Load()
	if l == nil {
		return allUnaddressable
	}
	return l
}

// installLeaf ensures a private, writable leaf is installed for addr's
// page and returns it. If the slot currently holds one of the shared
// leaves (nil meaning allUnaddressable, or a copy-on-write allDefined
// alias), a private copy is installed via a single compare-and-swap
// (spec §3: "Unallocated regions point to a shared all-unaddressable
// leaf ... zeroed leaves may alias a shared all-defined leaf
// (copy-on-write)", and spec §5: "leaf installation uses a pointer-sized
// compare-and-swap").
func (m *Map) installLeaf(addr uintptr) *leaf {
	s := m.slot(dirIndex(addr))
	for {
		cur := s.Load()
		if cur != nil && cur != allUnaddressable && cur != allDefined {
			return cur
		}
		next := &leaf{}
		if cur == allDefined {
			next.bytes = allDefined.bytes
		}
		if s.CompareAndSwap(cur, next) {
			return next
		}
		// Lost the race; loop and re-check what's there now.
	}
}

// Get returns the shadow state of the byte at addr.
func (m *Map) Get(addr uintptr) State {
	l := m.leafFor(addr)
	return l.bytes[pageOffset(addr)]
}

// Set stores the shadow state of the byte at addr.
func (m *Map) Set(addr uintptr, s State) {
	l := m.installLeaf(addr)
	l.bytes[pageOffset(addr)] = s
}

// StampWrite marks the n bytes starting at addr as Defined, the
// unconditional effect of any application store (spec §4.A policy: "A
// write at address a of size n stamps those bytes Defined").
func (m *Map) StampWrite(addr uintptr, n int) {
	m.fill(addr, n, Defined)
}

// MarkUndefined marks the n bytes starting at addr as Undefined, used
// immediately after a heap allocation (spec §4.A: "Heap allocations mark
// bytes Undefined").
func (m *Map) MarkUndefined(addr uintptr, n int) {
	m.fill(addr, n, Undefined)
}

// MarkUnaddressable marks the n bytes starting at addr as Unaddressable,
// used when a heap region is freed (spec §4.A: "freed regions return to
// Unaddressable").
func (m *Map) MarkUnaddressable(addr uintptr, n int) {
	m.fill(addr, n, Unaddressable)
}

func (m *Map) fill(addr uintptr, n int, s State) {
	if n <= 0 {
		return
	}
	end := addr + uintptr(n)
	for a := addr; a < end; {
		pageEnd := (a &^ pageMask) + pageSize
		stop := end
		if pageEnd < stop {
			stop = pageEnd
		}
		l := m.installLeaf(a)
		for b := a; b < stop; b++ {
			l.bytes[pageOffset(b)] = s
		}
		a = stop
	}
}

// Range is one contiguous run of bytes sharing the same State, as
// yielded by GetRange.
type Range struct {
	Addr  uintptr
	Len   int
	State State
}

// GetRange walks [addr, addr+len) and calls yield once per maximal
// contiguous run of bytes sharing the same state (spec §4.A:
// "get_range(addr, len) -> iterator of (subrange, State)"). Iteration
// stops early if yield returns false.
func (m *Map) GetRange(addr uintptr, length int, yield func(Range) bool) {
	if length <= 0 {
		return
	}
	end := addr + uintptr(length)
	runStart := addr
	runState := m.Get(addr)
	for a := addr + 1; a < end; a++ {
		s := m.Get(a)
		if s != runState {
			if !yield(Range{Addr: runStart, Len: int(a - runStart), State: runState}) {
				return
			}
			runStart = a
			runState = s
		}
	}
	yield(Range{Addr: runStart, Len: int(end - runStart), State: runState})
}

// CheckRange scans forward through [addr, addr+len) and returns the
// address of the first byte whose state does not equal expected, or
// found=false if every byte matches (spec §4.A:
// "check_range(addr, len, expected) -> first_mismatch_addr | None").
func (m *Map) CheckRange(addr uintptr, length int, expected State) (mismatch uintptr, found bool) {
	for a := addr; a < addr+uintptr(length); a++ {
		if m.Get(a) != expected {
			return a, true
		}
	}
	return 0, false
}

// CheckRangeBackward is CheckRange scanning from the end of the range
// towards its start, used by callers that want to report the last
// mismatching byte rather than the first (spec §4.A:
// "check_range_backward(addr, len, expected) -> last_mismatch_addr | None").
func (m *Map) CheckRangeBackward(addr uintptr, length int, expected State) (mismatch uintptr, found bool) {
	for i := length - 1; i >= 0; i-- {
		a := addr + uintptr(i)
		if m.Get(a) != expected {
			return a, true
		}
	}
	return 0, false
}

// NextStateChange scans forward from addr, up to limit bytes, and
// returns the address of the first byte whose state differs from
// boundaryState (spec §4.A: "next_state_change(addr, limit,
// boundary_state) -> addr | None (aligned scans over packed words for
// speed)"). The aligned-word fast path skips whole runs of
// boundaryState bytes at a time instead of testing byte-by-byte.
func (m *Map) NextStateChange(addr uintptr, limit int, boundaryState State) (uintptr, bool) {
	end := addr + uintptr(limit)
	var pattern [8]State
	for i := range pattern {
		pattern[i] = boundaryState
	}
	for a := addr; a < end; {
		l := m.leafFor(a)
		off := pageOffset(a)
		pageEnd := pageSize
		if remaining := int(end - a); remaining < pageSize-int(off) {
			pageEnd = int(off) + remaining
		}
		for i := int(off); i < pageEnd; i++ {
			if i&7 == 0 && i+8 <= pageEnd && *(*[8]State)(l.bytes[i : i+8]) == pattern {
				i += 7
				continue
			}
			if l.bytes[i] != boundaryState {
				return a + uintptr(i-int(off)), true
			}
		}
		a += uintptr(pageEnd - int(off))
	}
	return 0, false
}

// Copy duplicates the shadow state of [src, src+len) onto [dst,
// dst+len), preserving per-byte state (spec §4.A: "copy(src, dst, len)
// preserving per-byte state"). Overlapping ranges are handled by
// buffering the source states first.
func (m *Map) Copy(src, dst uintptr, length int) {
	if length <= 0 {
		return
	}
	states := make([]State, length)
	for i := 0; i < length; i++ {
		states[i] = m.Get(src + uintptr(i))
	}
	for i := 0; i < length; i++ {
		m.Set(dst+uintptr(i), states[i])
	}
}
