package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// ExceptionRecord implements the "Exception record" contract from spec
// §4.D: the fixed prefix is always checked, and the trailing
// parameter-array length comes from an in-struct counter field
// (EXCEPTION_RECORD's NumberParameters).
type ExceptionRecord struct {
	PrefixLen        int
	NumParamsOffset  int
	ParamArrayOffset int
	ParamSize        int // bytes per array element (pointer-sized)
	MaxParams        int
}

func (h ExceptionRecord) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	base := uintptr(call.Args[arg.Ordinal].Raw)
	switch phase {
	case sysarg.PhasePre:
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, base, h.PrefixLen)
		}
		if arg.Mode.Has(sysarg.Write) {
			checkAddressable(sm, rep, arg.Ordinal, base, h.PrefixLen, true)
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, base, h.PrefixLen)
		}
	}

	count, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.NumParamsOffset))
	if !ok {
		return true
	}
	n := int(count)
	if n > h.MaxParams {
		n = h.MaxParams
	}
	arrLen := n * h.ParamSize
	arrBase := base + uintptr(h.ParamArrayOffset)

	switch phase {
	case sysarg.PhasePre:
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, arrBase, arrLen)
		}
		if arg.Mode.Has(sysarg.Write) {
			checkAddressable(sm, rep, arg.Ordinal, arrBase, arrLen, true)
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, arrBase, arrLen)
		}
	}
	return true
}
