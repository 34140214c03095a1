// Package affinity pins the calling OS thread to a given logical CPU.
// Platform-specific implementations live in separate files (affinity_linux.go,
// affinity_other.go) guarded by build tags, following momentics-hioload-ws's
// affinity package layout.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package affinity

// SetAffinity pins the current OS thread to cpuID on supported platforms.
// The caller must have already locked the calling goroutine to its OS
// thread (runtime.LockOSThread) — a thread-affinity call that migrates to a
// different thread next scheduling point is pointless.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}
