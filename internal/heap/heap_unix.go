//go:build linux || darwin

package heap

import "golang.org/x/sys/unix"

// ProtFlags returns the mprotect-style protection flags appropriate for
// this space's kind: Code space is executable, everything else is
// read/write only. This has no effect on the simulated heap itself (no real
// memory is mapped); it exists so a host embedding this collector over a
// real mmap'd arena can ask a Space what protection its pages need,
// mirroring golang.org/x/debug's use of golang.org/x/sys/unix for low-level
// process/memory attributes in its test harness.
func (k SpaceKind) ProtFlags() int {
	if k == Code {
		return unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	}
	return unix.PROT_READ | unix.PROT_WRITE
}
