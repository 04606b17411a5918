package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

const (
	secDescControlSaclPresent = 1 << 4
	secDescControlDaclPresent = 1 << 2
)

// SecurityDescriptor implements the "Security descriptor" contract
// from spec §4.D: a fixed header is always checked; a Sacl and/or
// Dacl, each a separately pointed-to ACL, are checked only when the
// header's control bitmap says they are present.
type SecurityDescriptor struct {
	HeaderLen      int
	ControlOffset  int
	SaclPtrOffset  int
	DaclPtrOffset  int
	AclLenFieldOff int // offset, within the pointed-to ACL, of its own AclSize field
	MaxAclLen      int
}

func (h SecurityDescriptor) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	base := uintptr(call.Args[arg.Ordinal].Raw)
	switch phase {
	case sysarg.PhasePre:
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, base, h.HeaderLen)
		}
		if arg.Mode.Has(sysarg.Write) {
			checkAddressable(sm, rep, arg.Ordinal, base, h.HeaderLen, true)
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, base, h.HeaderLen)
		}
	}

	control, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.ControlOffset))
	if !ok {
		return true
	}
	if control&secDescControlSaclPresent != 0 {
		h.handleAcl(phase, mem, sm, arg, base+uintptr(h.SaclPtrOffset), rep)
	}
	if control&secDescControlDaclPresent != 0 {
		h.handleAcl(phase, mem, sm, arg, base+uintptr(h.DaclPtrOffset), rep)
	}
	return true
}

func (h SecurityDescriptor) handleAcl(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, ptrFieldAddr uintptr, rep sysarg.Reporter) {
	ptrVal, ok := readUint32(mem, rep, arg.Ordinal, ptrFieldAddr)
	if !ok || ptrVal == 0 {
		return
	}
	aclBase := uintptr(ptrVal)
	size, ok := readUint32(mem, rep, arg.Ordinal, aclBase+uintptr(h.AclLenFieldOff))
	if !ok {
		return
	}
	n := int(size)
	if n > h.MaxAclLen {
		n = h.MaxAclLen
	}
	switch phase {
	case sysarg.PhasePre:
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, aclBase, n)
		}
		if arg.Mode.Has(sysarg.Write) {
			checkAddressable(sm, rep, arg.Ordinal, aclBase, n, true)
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, aclBase, n)
		}
	}
}
