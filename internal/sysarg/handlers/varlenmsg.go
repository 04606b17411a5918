package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// VarLenMessage implements the "Variable-length message" contract from
// spec §4.D: the struct prefix is always checked, the actual message
// length comes from the prefix's size field, the total checked length
// is capped, and an all-zero message is tolerated (some callers pass a
// zeroed struct purely to probe capacity).
//
// PrefixLen is the fixed header size; SizeFieldOffset is the byte
// offset of the 4-byte length field inside that header (modelled on
// struct msghdr's msg_iovlen/msg_controllen shape); MaxLen caps the
// total bytes ever checked, regardless of what the size field claims.
type VarLenMessage struct {
	PrefixLen       int
	SizeFieldOffset int
	MaxLen          int
}

func (h VarLenMessage) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	av := call.Args[arg.Ordinal]
	base, upperLen := uintptr(av.Raw), av.UpperLen
	prefixLen := h.PrefixLen
	if prefixLen <= 0 || prefixLen > upperLen {
		prefixLen = upperLen
	}

	if arg.Mode.Has(sysarg.Read) {
		checkDefined(sm, rep, arg.Ordinal, base, prefixLen)
	}
	if arg.Mode.Has(sysarg.Write) {
		checkAddressable(sm, rep, arg.Ordinal, base, prefixLen, true)
	}

	size, ok := readUint32(mem, rep, arg.Ordinal, base+uintptr(h.SizeFieldOffset))
	if !ok {
		return true
	}
	msgLen := int(size)
	if msgLen == 0 {
		// A zero-filled probe message is tolerated (spec §4.D).
		return true
	}
	if msgLen > h.MaxLen {
		msgLen = h.MaxLen
	}

	bodyBase := base + uintptr(prefixLen)
	switch phase {
	case sysarg.PhasePre:
		if arg.Mode.Has(sysarg.Read) {
			checkDefined(sm, rep, arg.Ordinal, bodyBase, msgLen)
		}
		if arg.Mode.Has(sysarg.Write) {
			checkAddressable(sm, rep, arg.Ordinal, bodyBase, msgLen, true)
		}
	case sysarg.PhasePost:
		if arg.Mode.Has(sysarg.Write) {
			markDefined(sm, bodyBase, msgLen)
		}
	}
	return true
}
