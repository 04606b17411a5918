package sysarg

// NewLinuxTable returns a descriptor table covering a representative
// slice of Linux syscalls. Its entries use literal, parameter-reference
// and return-value sizes and the Read, Write, LengthInOut and
// ComplexType flags; no entry uses SizeCString, SizeInField,
// SizeInElements, InlineBool, NoWriteIfCountZero, PostSizeIoStatus or
// PostSize8Bytes. A production build would carry the full
// syscall surface; this is intentionally the same kind of partial,
// hand-maintained table original_source/drsyscall ships (not every
// syscall needs a descriptor: unknown numbers fall back to the
// memory-compare path, spec §4.C step 1).
func NewLinuxTable() *Table {
	t := NewTable()

	// read(fd, buf, count) -> ssize_t: buf is written, its actually
	// written length is the return value (SizeRetVal), and the call's
	// own declared upper bound before knowing the result is count, read
	// from parameter 2.
	t.Register(Descriptor{
		Number:   0,
		Name:     "read",
		ArgCount: 3,
		Args: []ArgDescriptor{
			{Ordinal: 1, Mode: Write, Size: SizeSpec{Kind: SizeParamRef, Param: 2}},
		},
	})

	// write(fd, buf, count): buf is read for count bytes, defined per
	// the caller.
	t.Register(Descriptor{
		Number:   1,
		Name:     "write",
		ArgCount: 3,
		Args: []ArgDescriptor{
			{Ordinal: 1, Mode: Read, Size: SizeSpec{Kind: SizeParamRef, Param: 2}},
		},
	})

	// ioctl(fd, request, argp): dispatched through the device-I/O-control
	// complex-type handler (spec §4.D "Device-I/O-control payload"),
	// which understands the per-request payload shape (including socket
	// ioctls keyed on address family).
	t.Register(Descriptor{
		Number:   16,
		Name:     "ioctl",
		ArgCount: 3,
		Args: []ArgDescriptor{
			{Ordinal: 2, Mode: Read | Write | ComplexType, Complex: TypeIoctlPayload},
		},
	})

	// recvmsg(sockfd, msg, flags): msg is the variable-length message
	// header handled by the complex-type handler (spec §4.D "Variable-
	// length message").
	t.Register(Descriptor{
		Number:   47,
		Name:     "recvmsg",
		ArgCount: 3,
		Args: []ArgDescriptor{
			{Ordinal: 1, Mode: Read | Write | ComplexType, Complex: TypeVarLenMessage},
		},
	})

	// sendmsg(sockfd, msg, flags): same payload, input direction.
	t.Register(Descriptor{
		Number:   46,
		Name:     "sendmsg",
		ArgCount: 3,
		Args: []ArgDescriptor{
			{Ordinal: 1, Mode: Read | ComplexType, Complex: TypeVarLenMessage},
		},
	})

	// getsockopt(sockfd, level, optname, optval, optlen): optlen is
	// LengthInOut (in: buffer capacity; out: bytes actually written),
	// the classic SYSARG_LENGTH_INOUT shape from drsyscall_os.h.
	t.Register(Descriptor{
		Number:   55,
		Name:     "getsockopt",
		ArgCount: 5,
		Args: []ArgDescriptor{
			{Ordinal: 3, Mode: Write | LengthInOut, Size: SizeSpec{Kind: SizeParamRef, Param: 4}},
			{Ordinal: 4, Mode: Read | Write | LengthInOut, Size: SizeSpec{Kind: SizeLiteral, Literal: 4}},
		},
	})

	// getcwd(buf, size): buf is written with a NUL-terminated path; the
	// kernel returns the number of bytes written (including the NUL) on
	// success, so the post-call write length comes from the return
	// value. A return-value size resolves to 0 before the call, so the
	// pre-call walk makes no addressability check on buf.
	t.Register(Descriptor{
		Number:   79,
		Name:     "getcwd",
		ArgCount: 2,
		Args: []ArgDescriptor{
			{Ordinal: 0, Mode: Write, Size: SizeSpec{Kind: SizeRetVal}},
		},
	})

	return t
}
