// Package callstack implements the packed-callstack module from spec
// §3 ("Stack fingerprint (packed callstack)") and §4.B: capture, pack,
// hash, compare, render, with reference-counted reuse across the alloc
// and leak paths.
package callstack

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/go-delve/dmcore/internal/logflags"
	"github.com/go-delve/dmcore/internal/safemem"
)

// Frame is one entry of a captured stack: either a module+offset pair
// (symbols unavailable) or a module+symbol(+file/line) triplet, per
// spec §4.B render rule.
type Frame struct {
	Module string
	Offset uint64 // offset from Module's load base
	Symbol string // empty if symbols are unavailable
	File   string
	Line   int
}

// Handle is an opaque, reference-counted identifier for one interned
// stack (spec §9: "Packed callstack as a growable intern pool: use
// integer handles rather than pointers; frames stored out-of-line in a
// stable arena so hashing and equality are pointer-free").
type Handle uint32

// NoStack is the zero Handle, meaning "no stack captured".
const NoStack Handle = 0

type entry struct {
	frames   []Frame
	hash     uint64
	refcount int32
}

// Pool is the growable intern arena backing every Handle. The zero
// value is not usable; construct with NewPool.
type Pool struct {
	mu      sync.Mutex
	entries []entry // entries[0] is unused so Handle(0) == NoStack
	byHash  map[uint64][]Handle

	renderCache *lru.Cache[Handle, string]
}

// NewPool returns an empty intern pool. renderCacheSize bounds the LRU
// used to memoize Render output (spec §11.2 in SPEC_FULL.md).
func NewPool(renderCacheSize int) *Pool {
	if renderCacheSize <= 0 {
		renderCacheSize = 1
	}
	rc, _ := lru.New[Handle, string](renderCacheSize)
	return &Pool{
		entries:     make([]entry, 1),
		byHash:      make(map[uint64][]Handle),
		renderCache: rc,
	}
}

func hashFrames(frames []Frame) uint64 {
	h := fnv.New64a()
	for _, f := range frames {
		fmt.Fprintf(h, "%s|%d|%s|%s|%d;", f.Module, f.Offset, f.Symbol, f.File, f.Line)
	}
	return h.Sum64()
}

func framesEqual(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Intern finds or inserts frames, returning a Handle with refcount 1 on
// first insertion. Subsequent identical captures find the existing
// entry and bump its refcount (spec §3: "subsequent identical captures
// are discarded ... A reference count permits safe reuse across the
// alloc and leak paths").
func (p *Pool) Intern(frames []Frame) Handle {
	h := hashFrames(frames)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cand := range p.byHash[h] {
		if framesEqual(p.entries[cand].frames, frames) {
			p.entries[cand].refcount++
			return cand
		}
	}
	cp := make([]Frame, len(frames))
	copy(cp, frames)
	p.entries = append(p.entries, entry{frames: cp, hash: h, refcount: 1})
	handle := Handle(len(p.entries) - 1)
	p.byHash[h] = append(p.byHash[h], handle)
	return handle
}

// Clone increments the refcount of an existing handle.
func (p *Pool) Clone(h Handle) Handle {
	if h == NoStack {
		return NoStack
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) < len(p.entries) {
		p.entries[h].refcount++
	}
	return h
}

// Release decrements the refcount of h. It does not reclaim storage
// (the arena is append-only, matching the "stable arena" design note in
// spec §9 so hashing/equality stay pointer-free); it exists so callers
// can track liveness for leak-scanner bookkeeping without the pool
// needing a real GC.
func (p *Pool) Release(h Handle) {
	if h == NoStack {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) < len(p.entries) && p.entries[h].refcount > 0 {
		p.entries[h].refcount--
	}
}

// Frames returns the frames for h (empty if h is NoStack or unknown).
func (p *Pool) Frames(h Handle) []Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) >= len(p.entries) {
		return nil
	}
	return p.entries[h].frames
}

// Hash returns the structural hash of h (spec §4.B: "hash(StackHandle)
// -> u64 ... structural; no symbolization needed").
func (p *Pool) Hash(h Handle) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h) >= len(p.entries) {
		return 0
	}
	return p.entries[h].hash
}

// Eq reports whether a and b are the same stack, frame-by-frame (spec
// §3: "Equality is exact frame-by-frame").
func (p *Pool) Eq(a, b Handle) bool {
	if a == b {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(a) >= len(p.entries) || int(b) >= len(p.entries) {
		return false
	}
	return p.entries[a].hash == p.entries[b].hash && framesEqual(p.entries[a].frames, p.entries[b].frames)
}

// Render formats h as text, one frame per line, using the spec §4.B
// format: "module!symbol+offset (file:line)" when symbols are
// available, "<module+0xHEX>" otherwise. Results are memoized in the
// pool's render LRU since hot call sites get captured repeatedly.
func (p *Pool) Render(h Handle) string {
	if s, ok := p.renderCache.Get(h); ok {
		return s
	}
	frames := p.Frames(h)
	var b strings.Builder
	for _, f := range frames {
		renderFrame(&b, f)
		b.WriteByte('\n')
	}
	s := b.String()
	p.renderCache.Add(h, s)
	return s
}

// SymbolicFrames renders h as "module!symbol" lines (falling back to
// offset form for any frame with no resolved symbol), top-to-bottom,
// the form suppress's symbolic-form suggestion stanza uses (spec
// §4.F).
func (p *Pool) SymbolicFrames(h Handle) []string {
	frames := p.Frames(h)
	out := make([]string, len(frames))
	for i, f := range frames {
		if f.Symbol != "" {
			out[i] = fmt.Sprintf("%s!%s", f.Module, f.Symbol)
		} else {
			out[i] = fmt.Sprintf("<%s+%#x>", f.Module, f.Offset)
		}
	}
	return out
}

// OffsetFrames renders h as "<module+0xHEX>" lines, top-to-bottom, the
// form suppress's offset-form suggestion stanza uses (spec §4.F).
func (p *Pool) OffsetFrames(h Handle) []string {
	frames := p.Frames(h)
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = fmt.Sprintf("<%s+%#x>", f.Module, f.Offset)
	}
	return out
}

func renderFrame(b *strings.Builder, f Frame) {
	if f.Symbol != "" {
		fmt.Fprintf(b, "%s!%s+%#x", f.Module, f.Symbol, f.Offset)
		if f.File != "" {
			fmt.Fprintf(b, " (%s:%d)", f.File, f.Line)
		}
		return
	}
	fmt.Fprintf(b, "<%s+%#x>", f.Module, f.Offset)
}

// Resolver maps a raw PC to a symbolic frame, as a module table /
// symbolizer (out of scope per spec §1, consumed here as a capability)
// would.
type Resolver interface {
	Resolve(pc uint64) (f Frame, ok bool)
}

// Walker captures stacks from a register snapshot plus a memory reader,
// per spec §4.B: "walks up to max_frames, using frame pointers when
// present, scanning forward a bounded number of bytes (e.g., one page)
// to tolerate frame-less code ... parameterised by a 'stack swap
// threshold' below which jumps to a different stack segment are treated
// as a terminal frame."
type Walker struct {
	Pool     *Pool
	Mem      *safemem.Reader
	Resolver Resolver

	PtrSize int // 8 on amd64/arm64

	MaxFrames int

	// ForwardScanBytes bounds how far the walker will scan forward
	// through the stack, a page by default, when frame pointers are
	// unavailable.
	ForwardScanBytes int

	// StackSwapThreshold: if the candidate frame pointer differs from
	// the previous one by more than this many bytes, the walk treats the
	// jump as a stack switch and stops (spec §4.B "stack swap threshold").
	StackSwapThreshold uint64
}

// Registers is the minimal register snapshot the walker needs.
type Registers struct {
	PC uint64
	FP uint64 // 0 means "unknown, fall back to forward scan"
	SP uint64
}

// Capture walks the stack starting at regs and interns the result,
// returning a Handle (spec §4.B: "capture(registers, location) ->
// StackHandle").
func (w *Walker) Capture(regs Registers) Handle {
	max := w.MaxFrames
	if max <= 0 {
		max = 64
	}
	frames := make([]Frame, 0, max)

	pc, fp, sp := regs.PC, regs.FP, regs.SP
	prevFP := fp
	for i := 0; i < max; i++ {
		f, ok := w.frameAt(pc)
		if !ok {
			f = Frame{Module: "?", Offset: pc}
		}
		frames = append(frames, f)

		var nextPC, nextFP uint64
		var advanced bool
		if fp != 0 {
			nextPC, nextFP, advanced = w.advanceViaFramePointer(fp)
		}
		if !advanced {
			nextPC, advanced = w.advanceViaForwardScan(sp)
			nextFP = 0
		}
		if !advanced || nextPC == 0 {
			break
		}
		if fp != 0 && w.StackSwapThreshold > 0 {
			delta := nextFP - prevFP
			if nextFP < prevFP {
				delta = prevFP - nextFP
			}
			if delta > w.StackSwapThreshold {
				// Terminal frame: treat the jump as a stack switch and stop,
				// per the "stack swap threshold" rule.
				break
			}
		}
		prevFP = nextFP
		pc, fp, sp = nextPC, nextFP, sp+uint64(w.PtrSize)
	}

	if logflags.Enabled("callstack") {
		logflags.Callstack().Debugf("captured %d frames from pc=%#x", len(frames), regs.PC)
	}
	return w.Pool.Intern(frames)
}

func (w *Walker) frameAt(pc uint64) (Frame, bool) {
	if w.Resolver == nil {
		return Frame{}, false
	}
	return w.Resolver.Resolve(pc)
}

// advanceViaFramePointer reads the saved-FP/return-address pair at
// [fp, fp+ptrSize) following the classic frame-pointer chain layout:
// *fp == caller's frame pointer, *(fp+ptrSize) == return address.
func (w *Walker) advanceViaFramePointer(fp uint64) (pc, nextFP uint64, ok bool) {
	if w.Mem == nil {
		return 0, 0, false
	}
	savedFP, okFP := w.Mem.ReadUint64At(uintptr(fp), true)
	if !okFP {
		return 0, 0, false
	}
	retAddr, okRA := w.Mem.ReadUint64At(uintptr(fp)+uintptr(w.PtrSize), true)
	if !okRA || retAddr == 0 {
		return 0, 0, false
	}
	return retAddr, savedFP, true
}

// advanceViaForwardScan tolerates frame-less code (no usable frame
// pointer) by scanning forward from sp, one pointer-width word at a
// time, up to ForwardScanBytes, and validating each candidate return
// address with validateCallSite before accepting it (spec §4.B:
// "scanning forward a bounded number of bytes ... to tolerate
// frame-less code").
func (w *Walker) advanceViaForwardScan(sp uint64) (pc uint64, ok bool) {
	if w.Mem == nil || w.PtrSize <= 0 {
		return 0, false
	}
	limit := w.ForwardScanBytes
	if limit <= 0 {
		limit = 4096
	}
	step := uint64(w.PtrSize)
	for off := uint64(0); off < uint64(limit); off += step {
		addr := sp + off
		candidate, okRead := w.Mem.ReadUint64At(uintptr(addr), true)
		if !okRead || candidate == 0 {
			continue
		}
		if _, resolved := w.frameAt(candidate); !resolved {
			continue
		}
		if !validateCallSite(w.Mem, candidate) {
			continue
		}
		return candidate, true
	}
	return 0, false
}
