package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// Address-family constants, mirrored from <sys/socket.h>, used only to
// size a struct sockaddr payload by its actual variant (spec §4.D:
// "socket-address variants keyed on address family").
const (
	afUnspec = 0
	afUnix   = 1
	afInet   = 2
	afInet6  = 10
)

// sockaddrLen returns the real struct size for a given address family,
// falling back to cap when the family is unrecognised (a generic
// struct sockaddr is checked to its declared capacity instead).
func sockaddrLen(family uint16, cap int) int {
	var n int
	switch family {
	case afInet:
		n = 16 // struct sockaddr_in
	case afInet6:
		n = 28 // struct sockaddr_in6
	case afUnix:
		n = 110 // struct sockaddr_un (path-bearing, variable in practice)
	default:
		n = cap
	}
	if n > cap {
		n = cap
	}
	return n
}

// Sockaddr implements the socket-address sub-handler referenced by
// spec §4.D's device-I/O-control contract: the first 2 bytes are the
// address family, which determines how much of the rest of the
// structure is actually in play.
type Sockaddr struct {
	FamilyOffset int
}

func (h Sockaddr) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	av := call.Args[arg.Ordinal]
	base, cap := uintptr(av.Raw), av.UpperLen
	familyAddr := base + uintptr(h.FamilyOffset)

	if phase == sysarg.PhasePre && arg.Mode.Has(sysarg.Read) {
		checkDefined(sm, rep, arg.Ordinal, familyAddr, 2)
	}

	data, ok := mem.ReadAt(familyAddr, 2)
	if !ok {
		rep.Report(sysarg.Finding{Kind: sysarg.FindingUnaddressableAccess, Addr: familyAddr, Len: 2, Ordinal: arg.Ordinal})
		return true
	}
	family := uint16(data[0]) | uint16(data[1])<<8
	n := sockaddrLen(family, cap)

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
	return true
}
