package main

import "github.com/go-delve/dmcore/internal/sysarg"

// traceFile is the on-disk shape of a recorded syscall trace (spec
// §11.7's "replaying a recorded syscall-argument trace through
// internal/sysarg for offline testing"). Each argument's Data, when
// present, is copied into a real in-process buffer so sysarg.Walker's
// safemem.Reader (bound to our own pid) can read it exactly like it
// would read a traced process's memory.
type traceFile struct {
	Calls []traceCall `json:"calls"`
}

type traceCall struct {
	Number int        `json:"number"`
	Ret    int64      `json:"ret"`
	Args   []traceArg `json:"args"`
}

type traceArg struct {
	// Raw is this argument's literal register/stack value (a file
	// descriptor, a count, an ioctl request code). Ignored when Data is
	// present, since a pointer argument's Raw is derived from the
	// buffer's real address instead.
	Raw uint64 `json:"raw,omitempty"`

	// UpperLen is the argument's declared upper-bound pointee length
	// (spec §4.C "raw pointer + upper-bound length"); 0 for a
	// non-pointer argument.
	UpperLen int `json:"upper_len"`

	// Data is the memory snapshot this argument points to, if any.
	// encoding/json base64-encodes/decodes it automatically.
	Data []byte `json:"data,omitempty"`
}

// buildCall materializes a traceCall into a sysarg.Call whose pointer
// arguments reference real, addressable buffers in this process. The
// returned buffers must be kept alive (via runtime.KeepAlive) for as
// long as the Call is in use.
func buildCall(tc traceCall) (sysarg.Call, [][]byte) {
	args := make([]sysarg.ArgValue, len(tc.Args))
	bufs := make([][]byte, len(tc.Args))
	for i, a := range tc.Args {
		raw := a.Raw
		if len(a.Data) > 0 {
			buf := make([]byte, len(a.Data))
			copy(buf, a.Data)
			raw = uint64(bufAddr(buf))
			bufs[i] = buf
		}
		args[i] = sysarg.ArgValue{Raw: raw, UpperLen: a.UpperLen}
	}
	return sysarg.Call{Number: tc.Number, Ret: tc.Ret, Args: args}, bufs
}
