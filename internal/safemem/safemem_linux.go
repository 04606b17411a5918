//go:build linux

package safemem

import "golang.org/x/sys/unix"

// ReadAt attempts to read n bytes starting at addr using
// process_vm_readv(2), which lets the tool read a traced process's
// memory in one syscall without attaching a debug register or faulting
// the reading thread on a bad address. It returns ok=false, with a nil
// slice, if the region could not be read in its entirety; callers must
// treat that as "presumed unaddressable" per spec §7 and must not retry
// indefinitely.
func (r *Reader) ReadAt(addr uintptr, n int) (data []byte, ok bool) {
	if n <= 0 {
		return nil, true
	}
	buf := make([]byte, n)
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(n)}}
	remote := []unix.RemoteIovec{{Base: addr, Len: n}}
	got, err := unix.ProcessVMReadv(r.pid, local, remote, 0)
	if err != nil || got != n {
		return nil, false
	}
	return buf, true
}
