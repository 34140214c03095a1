//go:build linux
// +build linux

// File: internal/affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux implementation of thread affinity pinning, via the pure-Go
// sched_setaffinity(2) wrapper in golang.org/x/sys/unix rather than cgo.

package affinity

import "golang.org/x/sys/unix"

// setAffinityPlatform sets the calling thread's affinity to cpuID.
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}
