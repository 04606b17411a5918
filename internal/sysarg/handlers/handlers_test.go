//go:build linux

package handlers

import (
	"encoding/binary"
	"os"
	"testing"
	"unsafe"

	"github.com/go-delve/dmcore/internal/safemem"
	"github.com/go-delve/dmcore/internal/shadow"
	"github.com/go-delve/dmcore/internal/sysarg"
)

type fakeReporter struct {
	findings []sysarg.Finding
}

func (f *fakeReporter) Report(fi sysarg.Finding) { f.findings = append(f.findings, fi) }

func baseOf(buf []byte) uintptr { return uintptr(unsafe.Pointer(&buf[0])) }

func TestVarLenMessageHandler(t *testing.T) {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint32(buf[4:8], 10) // body length field at offset 4

	sm := shadow.New()
	base := baseOf(buf)
	sm.MarkUndefined(base, 64) // prefix + body start undefined

	h := VarLenMessage{PrefixLen: 8, SizeFieldOffset: 4, MaxLen: 32}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.Write | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 64}}}

	if !h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep) {
		t.Fatalf("expected handled=true")
	}
	var gotUninit bool
	for _, f := range rep.findings {
		if f.Kind == sysarg.FindingUninitializedRead {
			gotUninit = true
		}
	}
	if !gotUninit {
		t.Fatalf("expected an uninitialized-read finding for the undefined prefix, got %+v", rep.findings)
	}

	sm.StampWrite(base, 64)
	rep = &fakeReporter{}
	h.Handle(sysarg.PhasePost, mem, sm, arg, call, rep)
	if mismatch, found := sm.CheckRange(base, 8+10, shadow.Defined); found {
		t.Fatalf("expected prefix+body Defined after post-call, mismatch at %#x", mismatch)
	}
}

func TestVarLenMessageZeroLenTolerated(t *testing.T) {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	sm := shadow.New()
	base := baseOf(buf)
	sm.StampWrite(base, 32)

	h := VarLenMessage{PrefixLen: 8, SizeFieldOffset: 4, MaxLen: 32}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 32}}}

	if !h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep) {
		t.Fatalf("expected handled=true")
	}
	if len(rep.findings) != 0 {
		t.Fatalf("zero-length message should be tolerated, got findings %+v", rep.findings)
	}
}

func TestMachineContextSegmentLowHalfOnly(t *testing.T) {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint32(buf[0:4], 1<<2) // bitmap selects the segment region (bit 2)
	sm := shadow.New()
	base := baseOf(buf)
	sm.MarkUndefined(base, 64)
	// Define only the low 2 bytes of the single 4-byte segment slot at offset 8.
	sm.StampWrite(base+8, 2)

	h := MachineContext{
		BitmapOffset: 0,
		Regions: []contextRegion{
			{Bit: 1 << 2, Offset: 8, Len: 4, Segment: true},
		},
	}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 64}}}

	h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	if len(rep.findings) != 0 {
		t.Fatalf("low 2 bytes are defined, padding should never be checked, got %+v", rep.findings)
	}
}

func TestExceptionRecordParamArrayFromCounter(t *testing.T) {
	buf := make([]byte, 128)
	const prefixLen, numOff, arrOff, paramSize = 16, 4, 16, 8
	binary.LittleEndian.PutUint32(buf[numOff:numOff+4], 2)
	sm := shadow.New()
	base := baseOf(buf)
	sm.StampWrite(base, prefixLen)
	sm.MarkUndefined(base+arrOff, paramSize*2)

	h := ExceptionRecord{PrefixLen: prefixLen, NumParamsOffset: numOff, ParamArrayOffset: arrOff, ParamSize: paramSize, MaxParams: 15}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 128}}}

	h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	var gotUninit bool
	for _, f := range rep.findings {
		if f.Kind == sysarg.FindingUninitializedRead {
			gotUninit = true
		}
	}
	if !gotUninit {
		t.Fatalf("expected an uninitialized-read finding over the 2-element param array, got %+v", rep.findings)
	}
}

func TestSecurityQoSOnlyFirstTenBytes(t *testing.T) {
	buf := make([]byte, 12)
	sm := shadow.New()
	base := baseOf(buf)
	sm.StampWrite(base, 10) // first 10 bytes defined, last 2 padding bytes left undefined

	h := SecurityQoS{}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 12}}}

	h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	if len(rep.findings) != 0 {
		t.Fatalf("trailing 2 padding bytes must not be checked, got %+v", rep.findings)
	}
}

func TestSecurityDescriptorOptionalAcls(t *testing.T) {
	buf := make([]byte, 64)
	const headerLen, controlOff, saclOff, daclOff = 20, 0, 8, 12
	// Control bitmap: Dacl present, Sacl absent.
	binary.LittleEndian.PutUint32(buf[controlOff:controlOff+4], secDescControlDaclPresent)
	sm := shadow.New()
	base := baseOf(buf)
	sm.StampWrite(base, headerLen)

	acl := make([]byte, 32)
	binary.LittleEndian.PutUint32(acl[0:4], 16) // AclSize field
	aclBase := baseOf(acl)
	sm.MarkUndefined(aclBase, 32)
	binary.LittleEndian.PutUint32(buf[daclOff:daclOff+4], uint32(aclBase))

	h := SecurityDescriptor{HeaderLen: headerLen, ControlOffset: controlOff, SaclPtrOffset: saclOff, DaclPtrOffset: daclOff, AclLenFieldOff: 0, MaxAclLen: 32}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 64}}}

	h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	var gotUninit bool
	for _, f := range rep.findings {
		if f.Kind == sysarg.FindingUninitializedRead {
			gotUninit = true
		}
	}
	if !gotUninit {
		t.Fatalf("expected the present Dacl's 16 bytes to be checked, got %+v", rep.findings)
	}
}

func TestCountedStringBufferLengths(t *testing.T) {
	buf := make([]byte, 16)
	const lenOff, maxLenOff, ptrOff, headerLen = 0, 4, 8, 16
	binary.LittleEndian.PutUint32(buf[lenOff:lenOff+4], 6)
	binary.LittleEndian.PutUint32(buf[maxLenOff:maxLenOff+4], 20)

	strBuf := make([]byte, 20)
	sm := shadow.New()
	base := baseOf(buf)
	strBase := baseOf(strBuf)
	binary.LittleEndian.PutUint32(buf[ptrOff:ptrOff+4], uint32(strBase))
	sm.StampWrite(base, headerLen)
	// Leave strBuf entirely Unaddressable.

	h := CountedString{HeaderLen: headerLen, LengthOffset: lenOff, MaxLengthOffset: maxLenOff, BufferPtrOffset: ptrOff}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 16}}}

	h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	var gotUnaddr bool
	for _, f := range rep.findings {
		if f.Kind == sysarg.FindingUnaddressableAccess {
			gotUnaddr = true
		}
	}
	if !gotUnaddr {
		t.Fatalf("expected an unaddressable finding over the MaximumLength buffer, got %+v", rep.findings)
	}
}

func TestSockaddrSizesByFamily(t *testing.T) {
	buf := make([]byte, 128)
	binary.LittleEndian.PutUint16(buf[0:2], afInet)
	sm := shadow.New()
	base := baseOf(buf)
	sm.StampWrite(base, 2)
	sm.MarkUndefined(base+2, 14) // rest of sockaddr_in left undefined

	h := Sockaddr{FamilyOffset: 0}
	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 0, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: uint64(base), UpperLen: 128}}}

	h.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	var gotUninit bool
	for _, f := range rep.findings {
		if f.Kind == sysarg.FindingUninitializedRead {
			gotUninit = true
		}
	}
	if !gotUninit {
		t.Fatalf("expected sockaddr_in's 16 bytes to be checked (not the full 128-byte cap), got %+v", rep.findings)
	}
}

func TestIoctlPayloadDispatchesByOpcode(t *testing.T) {
	buf := make([]byte, 16)
	sm := shadow.New()
	base := baseOf(buf)
	sm.MarkUndefined(base, 16)

	devType, fn := uint16(0x22), uint16(7)
	request := uint32(devType)<<ioctlDeviceShift | uint32(fn)<<ioctlMethodBits

	sub := VarLenMessage{PrefixLen: 4, SizeFieldOffset: 0, MaxLen: 8}
	// Reuse a trivial literal descriptor via the plain region path instead:
	plain := plainLenHandler{n: 12}

	payload := IoctlPayload{RequestOrdinal: 1}
	payload.RegisterOp(devType, fn, plain)
	_ = sub

	mem := safemem.NewReader(os.Getpid())
	rep := &fakeReporter{}
	arg := sysarg.ArgDescriptor{Ordinal: 2, Mode: sysarg.Read | sysarg.ComplexType}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: 0}, {Raw: uint64(request)}, {Raw: uint64(base), UpperLen: 16}}}

	handled := payload.Handle(sysarg.PhasePre, mem, sm, arg, call, rep)
	if !handled {
		t.Fatalf("expected the registered op to handle this request")
	}
	var gotUninit bool
	for _, f := range rep.findings {
		if f.Kind == sysarg.FindingUninitializedRead {
			gotUninit = true
		}
	}
	if !gotUninit {
		t.Fatalf("expected the dispatched sub-handler to check 12 bytes, got %+v", rep.findings)
	}
}

// plainLenHandler is a minimal test-only Handler that just checks n
// bytes as Read, used to verify IoctlPayload's dispatch wiring without
// depending on a full production sub-handler.
type plainLenHandler struct{ n int }

func (p plainLenHandler) Handle(phase sysarg.Phase, mem *safemem.Reader, sm *shadow.Map, arg sysarg.ArgDescriptor, call sysarg.Call, rep sysarg.Reporter) bool {
	av := call.Args[arg.Ordinal]
	checkDefined(sm, rep, arg.Ordinal, uintptr(av.Raw), p.n)
	return true
}

func TestIoctlPayloadFallsBackWhenUnregistered(t *testing.T) {
	payload := IoctlPayload{RequestOrdinal: 1}
	call := sysarg.Call{Args: []sysarg.ArgValue{{Raw: 0}, {Raw: 0xdeadbeef}, {Raw: 0}}}
	arg := sysarg.ArgDescriptor{Ordinal: 2}
	mem := safemem.NewReader(os.Getpid())
	if payload.Handle(sysarg.PhasePre, mem, shadow.New(), arg, call, &fakeReporter{}) {
		t.Fatalf("unregistered opcode with no fallback should report handled=false")
	}
}
