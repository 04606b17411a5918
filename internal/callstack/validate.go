package callstack

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/go-delve/dmcore/internal/safemem"
)

// maxCallInstrLen is the longest an x86-64 CALL instruction (including
// prefixes) can legally be; used to bound how far back we look for the
// instruction that produced a candidate return address.
const maxCallInstrLen = 15

// validateCallSite is the forward-scan heuristic's confirmation step: a
// word found on the stack is only accepted as a return address if the
// bytes immediately preceding it decode, byte-exact, as a CALL
// instruction. This is what lets the forward scan "tolerate frame-less
// code" (spec §4.B) without accepting arbitrary stack garbage that
// happens to look like a code address.
//
// x86asm.Decode is used here to get real instruction lengths rather
// than guessing a fixed width, the same decoder delve carries for
// interactive disassembly, repurposed for unwind-tolerance instead.
func validateCallSite(mem *safemem.Reader, retAddr uint64) bool {
	if mem == nil {
		return false
	}
	start := retAddr - maxCallInstrLen
	buf, ok := mem.ReadAt(uintptr(start), maxCallInstrLen+1)
	if !ok {
		// Fall back to a smaller window in case the preceding page isn't
		// mapped; a CALL is never longer than a handful of bytes in
		// practice.
		start = retAddr - 8
		buf, ok = mem.ReadAt(uintptr(start), 9)
		if !ok {
			return false
		}
	}
	target := int(retAddr - start)
	for i := 0; i < target; i++ {
		inst, err := x86asm.Decode(buf[i:], 64)
		if err != nil {
			continue
		}
		if i+inst.Len != target {
			continue
		}
		if inst.Op == x86asm.CALL || inst.Op == x86asm.CALLF {
			return true
		}
	}
	return false
}
