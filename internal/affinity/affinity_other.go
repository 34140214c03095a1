//go:build !linux
// +build !linux

// File: internal/affinity/affinity_other.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for platforms without sched_setaffinity(2).

package affinity

import "errors"

func setAffinityPlatform(cpuID int) error {
	return errors.New("affinity: not supported on this platform")
}
