// Package sysarg implements the syscall-descriptor engine from spec
// §3 ("Syscall descriptor") and §4.C: a declarative, data-driven table
// of per-syscall argument schemas plus the generic walker that
// interprets them pre-call and post-call.
package sysarg

// ModeFlags are the per-argument direction/shape flags from spec §3
// ("mode_flags carry {Read, Write, ComplexType, LengthInOut,
// SizeInElements, InlineBool, NoWriteIfCountZero, PostSizeIoStatus,
// PostSize8Bytes}"), named after drsyscall_os.h's SYSARG_* flags.
type ModeFlags uint32

const (
	Read ModeFlags = 1 << iota
	Write
	ComplexType
	LengthInOut
	SizeInElements
	InlineBool
	NoWriteIfCountZero
	PostSizeIoStatus
	PostSize8Bytes
)

func (m ModeFlags) Has(f ModeFlags) bool { return m&f != 0 }

// SizeKind distinguishes the forms size_spec can take (spec §3:
// "size_spec is either a literal byte count, a reference to another
// parameter holding the size (negative encoding), or a sentinel for
// strings / status blocks / retval-driven sizes").
type SizeKind int

const (
	// SizeLiteral: Size is a literal byte count.
	SizeLiteral SizeKind = iota
	// SizeParamRef: read the size from parameter k, where k is
	// SizeSpec.Param (spec §4.C "Negative size = -k").
	SizeParamRef
	// SizeCString: byte length until NUL (spec §4.C "CString").
	SizeCString
	// SizeRetVal: the syscall's own return value (spec §4.C
	// "PostSizeRetVal").
	SizeRetVal
	// SizeInField: a 4-byte size read from offset SizeSpec.Param inside the arg's
	// pointee (spec §4.C "SizeInField").
	SizeInField
)

// SizeSpec describes how to compute an argument's effective length.
type SizeSpec struct {
	Kind SizeKind
	// Param is the referenced parameter ordinal for SizeParamRef, or the
	// field offset for SizeInField.
	Param int
	// Literal is the byte count for SizeLiteral.
	Literal int
}

// ComplexTypeTag enumerates the specialised argument types from spec
// §4.D, replacing a control-flow chain with a per-type enum and a
// handler table indexed by it (spec §9 design note).
type ComplexTypeTag int

const (
	TypeNone ComplexTypeTag = iota
	TypeVarLenMessage
	TypeMachineContext
	TypeExceptionRecord
	TypeSecurityQoS
	TypeSecurityDescriptor
	TypeCountedString
	TypeIoctlPayload
	TypeSockaddr
)

// ArgDescriptor is one parameter's schema (spec §3: "{param_ordinal,
// size_spec, mode_flags, misc}").
type ArgDescriptor struct {
	Ordinal   int
	Size      SizeSpec
	Mode      ModeFlags
	ElemSize  int            // for SizeInElements: bytes per element
	Complex   ComplexTypeTag // for ComplexType: which handler applies
	Misc      int            // handler-specific extra
}

// Descriptor is one syscall's schema (spec §3: "{number, name, flags,
// arg_count, args: [ArgDescriptor]}").
type Descriptor struct {
	Number   int
	Name     string
	ArgCount int
	Args     []ArgDescriptor

	// Succeeds reports whether ret denotes success for this call. The
	// default ("result >= 0") covers the overwhelming majority of Linux
	// syscalls; a handful override it (spec §4.C post-call algorithm:
	// "the per-call success predicate — usually 'result >= 0', with
	// explicit exceptions for statuses that still write the last arg").
	Succeeds func(ret int64) bool

	// WritesOnException, when true, means post-call writable-arg marking
	// should still happen even though Succeeds(ret) is false — the
	// "exceptional statuses" carve-out in spec §4.C step 2 (e.g. a
	// buffer-too-small return that still wrote a truncated prefix).
	WritesOnException func(ret int64) bool
}

func defaultSucceeds(ret int64) bool { return ret >= 0 }

// Table is the descriptor registry, keyed by syscall number.
type Table struct {
	byNumber map[int]*Descriptor
}

// NewTable returns an empty descriptor table.
func NewTable() *Table {
	return &Table{byNumber: make(map[int]*Descriptor)}
}

// Register adds or replaces the descriptor for d.Number, filling in
// Succeeds with the default predicate if unset.
func (t *Table) Register(d Descriptor) {
	if d.Succeeds == nil {
		d.Succeeds = defaultSucceeds
	}
	cp := d
	t.byNumber[d.Number] = &cp
}

// Lookup resolves a syscall number to its descriptor (spec §4.C
// pre-call step 1: "Resolve descriptor by number; if unknown, fall
// through to a memory-compare fallback").
func (t *Table) Lookup(number int) (*Descriptor, bool) {
	d, ok := t.byNumber[number]
	return d, ok
}
