//go:build !linux

package safemem

// ReadAt is unimplemented outside Linux: process_vm_readv has no
// portable equivalent exposed by golang.org/x/sys on other kernels.
// Every caller already treats a failed read as presumed-unaddressable
// (spec §7), so returning ok=false here degrades safely rather than
// requiring a second code path per platform.
func (r *Reader) ReadAt(addr uintptr, n int) (data []byte, ok bool) {
	return nil, false
}
