package handlers

import (
	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

// Method/function bit layout for a CTL_CODE-style request encoding
// (DeviceType:16 | Access:2 | Function:12 | TransferMethod:2), the
// same scheme drsyscall_os.h decodes to find the per-ioctl payload
// shape (spec §4.D: "dispatch on operation code (extracted from a
// device-major / function / method encoding)").
const (
	ioctlMethodBits   = 2
	ioctlFunctionBits = 12
	ioctlFunctionMask = 1<<ioctlFunctionBits - 1
	ioctlDeviceShift  = ioctlMethodBits + 2 + ioctlFunctionBits
)

// ioctlOpcode extracts the (device type, function) pair that keys the
// operation table; access-rights and transfer-method bits are ignored
// since they don't change the payload layout.
func ioctlOpcode(request uint32) (deviceType uint16, function uint16) {
	deviceType = uint16(request >> ioctlDeviceShift)
	function = uint16((request >> ioctlMethodBits) & ioctlFunctionMask)
	return deviceType, function
}

type ioctlOp struct {
	DeviceType uint16
	Function   uint16
}

// IoctlPayload implements the "Device-I/O-control payload" contract
// from spec §4.D: the operation code is decoded from a sibling
// "request" argument, then dispatched to a per-operation sub-handler
// that understands that operation's payload shape (including
// socket-address variants keyed on address family, via Sockaddr).
type IoctlPayload struct {
	// RequestOrdinal is the argument ordinal holding the ioctl request
	// code (the descriptor's arg 1 in `ioctl(fd, request, argp)`).
	RequestOrdinal int
	Ops            map[ioctlOp]sysarg.Handler
	// Fallback runs when no registered op matches; nil means "let the
	// generic read/write path apply" (handled=false).
	Fallback sysarg.Handler
}

// RegisterOp adds a sub-handler keyed by (deviceType, function).
func (h *IoctlPayload) RegisterOp(deviceType, function uint16, sub sysarg.Handler) {
	if h.Ops == nil {
		h.Ops = make(map[ioctlOp]sysarg.Handler)
	}
	h.Ops[ioctlOp{DeviceType: deviceType, Function: function}] = sub
}

func (h IoctlPayload) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	if h.RequestOrdinal >= len(call.Args) {
		return false
	}
	request := uint32(call.Args[h.RequestOrdinal].Raw)
	devType, fn := ioctlOpcode(request)

	if sub, ok := h.Ops[ioctlOp{DeviceType: devType, Function: fn}]; ok {
		return sub.Handle(phase, mem, sm, arg, call, rep)
	}
	if h.Fallback != nil {
		return h.Fallback.Handle(phase, mem, sm, arg, call, rep)
	}
	return false
}
