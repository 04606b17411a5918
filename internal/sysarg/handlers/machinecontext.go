package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// contextRegion is one sub-register block inside a machine context
// struct, gated by a bit in the context's control bitmap (CONTEXT_DEBUG_REGISTERS,
// CONTEXT_FLOATING_POINT, CONTEXT_SEGMENTS, CONTEXT_INTEGER,
// CONTEXT_CONTROL, CONTEXT_EXTENDED_REGISTERS and similar).
type contextRegion struct {
	Bit      uint32
	Offset   int
	Len      int
	Segment  bool // 16-bit value + 16-bit pad per 4 bytes; only the low half is checked
}

// MachineContext implements the "Machine context" contract from spec
// §4.D: a control-bitmap field selects which sub-register blocks are
// present; segment-register blocks are 16-bit values padded to 32
// bits, so only the low half of each slot is checked.
type MachineContext struct {
	BitmapOffset int
	Regions      []contextRegion
}

func (h MachineContext) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	base := uintptr(call.Args[arg.Ordinal].Raw)
	bitmap, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.BitmapOffset))
	if !ok {
		return true
	}
	for _, r := range h.Regions {
		if bitmap&r.Bit == 0 {
			continue
		}
		regionBase := base + uintptr(r.Offset)
		if r.Segment {
			handleSegmentRegion(phase, sm, rep, arg, regionBase, r.Len)
			continue
		}
		handlePlainRegion(phase, sm, rep, arg, regionBase, r.Len)
	}
	return true
}

func handlePlainRegion(phase sysarg.Phase, sm *shadow.Map, rep sysarg.Reporter, arg sysarg.ArgDescriptor, base uintptr, n int) {
	switch phase {
	case sysarg.PhasePre:
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, base, n)
		}
		if arg.Mode.Has(sysarg.Write) {
			checkAddressable(sm, rep, arg.Ordinal, base, n, true)
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, base, n)
		}
	}
}

// handleSegmentRegion checks/marks only the low 2 bytes of each 4-byte
// slot in [base, base+n), skipping the high padding (spec §4.D:
// "segment registers are 16-bit values with 16-bit padding, so only
// the low half is checked").
func handleSegmentRegion(phase sysarg.Phase, sm *shadow.Map, rep sysarg.Reporter, arg sysarg.ArgDescriptor, base uintptr, n int) {
	const slot = 4
	const loHalf = 2
	for off := 0; off+slot <= n; off += slot {
		handlePlainRegion(phase, sm, rep, arg, base+uintptr(off), loHalf)
	}
}
