package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// SecurityQoS implements the "Security quality-of-service" contract
// from spec §4.D: the struct is 12 bytes wide on 32-bit but only the
// first 10 need be defined, the trailing 2 bytes being alignment
// padding that is never initialised by well-behaved callers.
type SecurityQoS struct{}

const securityQoSDefinedLen = 10

func (SecurityQoS) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	av := call.Args[arg.Ordinal]
	base := uintptr(av.Raw)
	n := securityQoSDefinedLen
	if n > av.UpperLen {
		n = av.UpperLen
	}
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
