package handlers

import "github.com/go-delve/dmcore/internal/sysarg"

// DefaultLinux returns a representative handler set for every
// ComplexTypeTag (spec §4.D), wired the way original_source/drsyscall
// wires its own per-type dispatch table: one instance per tag, with
// the ioctl dispatcher pre-populated with a socket-address sub-op so a
// caller sees real multi-level dispatch rather than a single flat
// handler. requestOrdinal is the argument index holding the ioctl
// request code (ordinal 1 in `ioctl(fd, request, argp)`).
func DefaultLinux(requestOrdinal int) map[sysarg.ComplexTypeTag]sysarg.Handler {
	ioctl := &IoctlPayload{RequestOrdinal: requestOrdinal}
	// A representative socket ioctl (get-interface-address-style):
	// device type 's' (0x73), function 0x0c, decoded the same way
	// SIOCGIFADDR-shaped requests are in drsyscall_os.h's device-control
	// table.
	ioctl.RegisterOp(0x73, 0x0c, Sockaddr{FamilyOffset: 0})

	return map[sysarg.ComplexTypeTag]sysarg.Handler{
		sysarg.TypeVarLenMessage: VarLenMessage{PrefixLen: 28, SizeFieldOffset: 24, MaxLen: 65536},
		sysarg.TypeMachineContext: MachineContext{
			BitmapOffset: 0,
			Regions: []contextRegion{
				{Bit: 1, Offset: 8, Len: 168},
				{Bit: 2, Offset: 176, Len: 16, Segment: true},
			},
		},
		sysarg.TypeExceptionRecord: ExceptionRecord{
			PrefixLen:       16,
			NumParamsOffset: 16,
			ParamArrayOffset: 20,
			ParamSize:       4,
			MaxParams:       15,
		},
		sysarg.TypeSecurityQoS:         SecurityQoS{},
		sysarg.TypeSecurityDescriptor: SecurityDescriptor{
			HeaderLen:     20,
			ControlOffset: 2,
			SaclPtrOffset: 8,
			DaclPtrOffset: 12,
			AclLenFieldOff: 2,
			MaxAclLen:     1024,
		},
		sysarg.TypeCountedString: CountedString{
			HeaderLen:       8,
			LengthOffset:    0,
			MaxLengthOffset: 2,
			BufferPtrOffset: 4,
		},
		sysarg.TypeIoctlPayload: ioctl,
		sysarg.TypeSockaddr:     Sockaddr{FamilyOffset: 0},
	}
}
