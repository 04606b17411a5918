package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// CountedString implements the "Counted string with buffer pointer"
// contract from spec §4.D (modelled on UNICODE_STRING): the header
// (Length, MaximumLength, Buffer) is checked/defined; the pointed-to
// buffer's MaximumLength bytes must be addressable, and Length bytes
// of it must be Defined pre-call (a Read arg) or written post-call (a
// Write arg).
type CountedString struct {
	HeaderLen        int
	LengthOffset     int
	MaxLengthOffset  int
	BufferPtrOffset  int
}

func (h CountedString) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	base := uintptr(call.Args[arg.Ordinal].Raw)
	switch phase {
	case sysarg.PhasePre:
		checkDefined(sm, rep, arg.Ordinal, base, h.HeaderLen)
	case sysarg.PhasePost:
		markDefined(sm, base, h.HeaderLen)
	}

	length, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.LengthOffset))
	if !ok {
		return true
	}
	maxLength, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.MaxLengthOffset))
	if !ok {
		return true
	}
	bufPtr, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.BufferPtrOffset))
	if !ok || bufPtr == 0 {
		return true
	}
	bufBase := uintptr(bufPtr)

	switch phase {
	case sysarg.PhasePre:
		checkAddressable(sm, rep, arg.Ordinal, bufBase, int(maxLength), arg.Mode.Has(sysarg.Write))
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, bufBase, int(length))
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, bufBase, int(length))
		}
	}
	return true
}
