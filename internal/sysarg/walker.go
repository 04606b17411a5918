package sysarg

import (
	"github.com/go-delve/dmcore/internal/logflags"
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
)

// FindingKind distinguishes the two bug kinds the walker itself can
// produce directly (spec §4.C steps 3-4); complex-type handlers can
// report the same kinds through Reporter.
type FindingKind int

const (
	FindingUninitializedRead FindingKind = iota
	FindingUnaddressableAccess
)

// Finding is one problem surfaced while walking a syscall's arguments.
// The walker never holds an error or log dependency itself (spec §7:
// "No exceptions propagate out of the engine; all handler paths are
// total"); it just accumulates Findings for the caller to report.
type Finding struct {
	Kind    FindingKind
	Addr    uintptr
	Len     int
	Ordinal int
	Write   bool
}

// Reporter lets complex-type handlers (internal/sysarg/handlers) emit
// Findings without sysarg importing the report package; it is
// implemented by *Walker itself (see Report below), breaking what
// would otherwise be an import cycle between sysarg and report.
type Reporter interface {
	Report(f Finding)
}

// Phase distinguishes the pre-call and post-call passes (spec §4.C).
type Phase int

const (
	PhasePre Phase = iota
	PhasePost
)

// Handler is the uniform interface for a specialised complex-type
// handler (spec §4.D contract, spec §9 design note: "a uniform (phase,
// arg_descriptor, base, upper_len) -> handled interface"). Returning
// handled=false tells the walker to fall back to the generic
// read/write check for this argument.
//
// Handlers receive the full Call rather than just this arg's own
// base/upper_len, since a few complex types (device-I/O-control's
// per-operation dispatch, keyed on a sibling "request code" argument)
// need to read a sibling argument's value to know how to interpret
// this one (spec §4.D: "dispatch on operation code ... to per-
// operation sub-handlers").
type Handler interface {
	Handle(phase Phase, mem *safemem.Reader, sm *shadow.Map, arg ArgDescriptor, call Call, rep Reporter) (handled bool)
}

// ArgValue is one captured argument: its raw register/stack value plus,
// when the argument is a pointer, the pointee's declared upper bound
// (used before the precise length is known, per spec §4.C handler
// contract "raw pointer + upper-bound length").
type ArgValue struct {
	Raw      uint64
	UpperLen int
}

// Call is the per-syscall state the walker needs: the resolved
// arguments (ordinal-indexed, per spec §3 "Per-thread context: ...
// saved syscall args (ordinal-indexed)"), and, post-call, the return
// value.
type Call struct {
	Number int
	Args   []ArgValue
	Ret    int64 // valid only during PhasePost

	// ArgRegState is the shadow state of each argument's own inline
	// register/stack slot (not its pointee), ordinal-indexed. It may be
	// left nil by callers that have no register shadow available, in
	// which case step 2 below is skipped.
	ArgRegState []shadow.State
}

// Walker is the generic descriptor-driven engine (spec §4.C).
type Walker struct {
	Table    *Table
	Mem      *safemem.Reader
	Shadow   *shadow.Map
	Handlers map[ComplexTypeTag]Handler

	findings []Finding
}

// Report implements Reporter for handlers.
func (w *Walker) Report(f Finding) { w.findings = append(w.findings, f) }

// PreCall runs the pre-call algorithm (spec §4.C) and returns every
// Finding surfaced. If the syscall number is unknown, ok is false and
// the caller should fall back to the memory-compare fallback (spec §7:
// "Missing descriptors for a syscall: non-fatal; engine switches to
// generic memory-compare fallback").
func (w *Walker) PreCall(c Call) (findings []Finding, ok bool) {
	w.findings = nil
	d, known := w.Table.Lookup(c.Number)
	if !known {
		logflags.Sysarg().Debugf("no descriptor for syscall %d, falling back to memory-compare", c.Number)
		return nil, false
	}
	for _, arg := range d.Args {
		if arg.Ordinal >= len(c.Args) {
			continue
		}
		av := c.Args[arg.Ordinal]
		base := uintptr(av.Raw)

		// Step 2: verify the inline argument slot itself (not its
		// pointee) is defined, before using it as a pointer or value.
		if arg.Ordinal < len(c.ArgRegState) && c.ArgRegState[arg.Ordinal] != shadow.Defined {
			w.Report(Finding{Kind: FindingUninitializedRead, Addr: 0, Len: 0, Ordinal: arg.Ordinal})
			continue
		}

		// InlineBool args carry their whole value in the argument slot
		// itself (spec §3's mode-flag set; drsyscall_os.h's
		// SYSARG_INLINED: "a non-memory argument"), so the register-state
		// check above is the only validation that applies; there is no
		// pointee to walk.
		if arg.Mode.Has(InlineBool) {
			continue
		}

		if arg.Mode.Has(ComplexType) {
			if h, found := w.Handlers[arg.Complex]; found {
				if h.Handle(PhasePre, w.Mem, w.Shadow, arg, c, w) {
					continue
				}
			}
		}

		length := w.resolveSize(arg, c, av, base, PhasePre)

		if arg.Mode.Has(Read) {
			w.checkDefined(arg.Ordinal, base, length, false)
		}
		if arg.Mode.Has(Write) {
			w.checkAddressable(arg.Ordinal, base, length, true)
		}
	}
	return w.findings, true
}

// PostCall runs the post-call algorithm (spec §4.C).
func (w *Walker) PostCall(c Call) (findings []Finding) {
	w.findings = nil
	d, known := w.Table.Lookup(c.Number)
	if !known {
		return nil
	}

	succeeded := d.Succeeds(c.Ret)
	for _, arg := range d.Args {
		if !arg.Mode.Has(Write) || arg.Ordinal >= len(c.Args) || arg.Mode.Has(InlineBool) {
			continue
		}
		if !succeeded {
			if d.WritesOnException == nil || !d.WritesOnException(c.Ret) {
				continue
			}
		}

		av := c.Args[arg.Ordinal]
		base := uintptr(av.Raw)

		if arg.Mode.Has(ComplexType) {
			if h, found := w.Handlers[arg.Complex]; found {
				if h.Handle(PhasePost, w.Mem, w.Shadow, arg, c, w) {
					continue
				}
			}
		}

		if arg.Mode.Has(NoWriteIfCountZero) {
			count := w.sizeParamValue(arg, c)
			if count == 0 {
				continue
			}
		}

		length := w.resolveSize(arg, c, av, base, PhasePost)
		w.Shadow.StampWrite(base, length)
	}
	return w.findings
}

// resolveSize implements the size-spec resolution rules of spec §4.C.
func (w *Walker) resolveSize(arg ArgDescriptor, c Call, av ArgValue, base uintptr, phase Phase) int {
	switch arg.Size.Kind {
	case SizeLiteral:
		return arg.Size.Literal
	case SizeParamRef:
		n := w.sizeParamValue(arg, c)
		if arg.Mode.Has(SizeInElements) {
			n *= arg.ElemSize
		}
		return n
	case SizeCString:
		n, ok := w.Mem.CStringLen(base, av.UpperLen)
		if !ok {
			// Unreadable argument memory during inspection: presumed
			// unaddressable, reported with the declared upper bound
			// (spec §7 "Unreadable argument memory ... treated as
			// 'presumed unaddressable' and reported with the struct's
			// declared size").
			w.Report(Finding{Kind: FindingUnaddressableAccess, Addr: base, Len: av.UpperLen, Ordinal: arg.Ordinal, Write: false})
			return 0
		}
		return n + 1 // include the NUL terminator in the checked range
	case SizeRetVal:
		if phase == PhasePost && c.Ret > 0 {
			return int(c.Ret)
		}
		return 0
	case SizeInField:
		sizeAddr := base + uintptr(arg.Size.Param)
		n, ok := w.Mem.ReadUint32At(sizeAddr, true)
		if !ok {
			return av.UpperLen
		}
		return int(n)
	default:
		return av.UpperLen
	}
}

// ioStatusInformationOffset is the byte offset of an IO_STATUS_BLOCK's
// Information field past its leading Status/Pointer union, on a
// 64-bit target (spec §4.C post-call step 1: "a status block's
// Information field").
const ioStatusInformationOffset = 8

// sizeParamValue resolves a SizeParamRef/NoWriteIfCountZero reference:
// "a reference to another parameter holding the size" (spec §3), reading
// the referenced register directly, or dereferencing it first when
// LengthInOut is set ("the value is a pointer to the size cell",
// spec §4.C), and widening to 8 bytes when PostSize8Bytes is set.
// PostSizeIoStatus instead treats the referenced param as a pointer to
// a status block and reads its Information field (spec §4.C post-call
// step 1).
func (w *Walker) sizeParamValue(arg ArgDescriptor, c Call) int {
	k := arg.Size.Param
	if k < 0 || k >= len(c.Args) {
		return 0
	}
	ref := c.Args[k]
	if arg.Mode.Has(PostSizeIoStatus) {
		v, ok := w.Mem.ReadUint64At(uintptr(ref.Raw)+ioStatusInformationOffset, true)
		if !ok {
			return 0
		}
		return int(v)
	}
	if !arg.Mode.Has(LengthInOut) {
		return int(ref.Raw)
	}
	addr := uintptr(ref.Raw)
	if arg.Mode.Has(PostSize8Bytes) {
		v, ok := w.Mem.ReadUint64At(addr, true)
		if !ok {
			return 0
		}
		return int(v)
	}
	v, ok := w.Mem.ReadUint32At(addr, true)
	if !ok {
		return 0
	}
	return int(v)
}

// checkDefined requires [base, base+n) to be entirely Defined,
// reporting the first mismatching subrange as an UninitializedRead
// (spec §4.C step 3).
func (w *Walker) checkDefined(ordinal int, base uintptr, n int, _ bool) {
	if n <= 0 {
		return
	}
	if mismatch, found := w.Shadow.CheckRange(base, n, shadow.Defined); found {
		end := base + uintptr(n)
		w.Report(Finding{Kind: FindingUninitializedRead, Addr: mismatch, Len: int(end - mismatch), Ordinal: ordinal})
	}
}

// checkAddressable requires [base, base+n) to be entirely addressable
// (any state other than Unaddressable), reporting the first
// mismatching subrange as an UnaddressableAccess (spec §4.C step 4).
func (w *Walker) checkAddressable(ordinal int, base uintptr, n int, write bool) {
	if n <= 0 {
		return
	}
	end := base + uintptr(n)
	for a := base; a < end; a++ {
		if w.Shadow.Get(a) == shadow.Unaddressable {
			// Report the maximal unaddressable run starting here.
			runEnd := a + 1
			for runEnd < end && w.Shadow.Get(runEnd) == shadow.Unaddressable {
				runEnd++
			}
			w.Report(Finding{Kind: FindingUnaddressableAccess, Addr: a, Len: int(runEnd - a), Ordinal: ordinal, Write: write})
			a = runEnd - 1
		}
	}
}
