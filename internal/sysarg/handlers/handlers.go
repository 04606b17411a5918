// Package handlers implements the specialised complex-type arg handlers
// from spec §4.D: one handler per complex type, each consuming the raw
// pointer + upper-bound length + pre/post phase and emitting shadow
// checks or marks for the exact bytes that type actually covers,
// instead of the generic "check UpperLen bytes" fallback.
package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// checkDefined and checkAddressable mirror the walker's own helpers
// (internal/sysarg.Walker.checkDefined/checkAddressable) but report
// through the Reporter interface handlers are given instead of
// appending to a private slice, since handlers live in a different
// package.
func checkDefined(sm *shadow.Map, rep sysarg.Reporter, ordinal int, base uintptr, n int) {
	if n <= 0 {
		return
	}
	if mismatch, found := sm.CheckRange(base, n, shadow.Defined); found {
		end := base + uintptr(n)
		rep.Report(sysarg.Finding{Kind: sysarg.FindingUninitializedRead, Addr: mismatch, Len: int(end - mismatch), Ordinal: ordinal})
	}
}

func checkAddressable(sm *shadow.Map, rep sysarg.Reporter, ordinal int, base uintptr, n int, write bool) {
	if n <= 0 {
		return
	}
	end := base + uintptr(n)
	for a := base; a < end; a++ {
		if sm.Get(a) == shadow.Unaddressable {
			runEnd := a + 1
			for runEnd < end && sm.Get(runEnd) == shadow.Unaddressable {
				runEnd++
			}
			rep.Report(sysarg.Finding{Kind: sysarg.FindingUnaddressableAccess, Addr: a, Len: int(runEnd - a), Ordinal: ordinal, Write: write})
			a = runEnd - 1
		}
	}
}

func markDefined(sm *shadow.Map, base uintptr, n int) {
	if n > 0 {
		sm.StampWrite(base, n)
	}
}

// readUint32 is a small convenience wrapper shared by every handler
// below; a failed read is treated as "presumed unaddressable" (spec
// §7), reported at the field's own address for exactly the 4 bytes
// the field occupies.
func readUint32(mem *safemem.Reader, rep sysarg.Reporter, ordinal int, addr uintptr) (uint32, bool) {
	v, ok := mem.ReadUint32At(addr, true)
	if !ok {
		rep.Report(sysarg.Finding{Kind: sysarg.FindingUnaddressableAccess, Addr: addr, Len: 4, Ordinal: ordinal})
		return 0, false
	}
	return v, true
}
