//go:build !windows

package local

import (
	"golang.org/x/sys/unix"
)

// lockMemory keeps b out of swap. It reports whether the lock succeeded.
func lockMemory(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	return unix.Mlock(b) == nil
}

func unlockMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	_ = unix.Munlock(b)
}
