//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package terminal

import (
	"github.com/dupres/dupres/internal/debug"

	"golang.org/x/sys/unix"
)

// IsProcessBackground reports whether the current process is running in the
// background. fd must be a file descriptor for the terminal.
func IsProcessBackground(fd uintptr) bool {
	bg, err := isProcessBackground(fd)
	if err != nil {
		debug.Log("can't check if we are in the background: %v", err)
		return false
	}
	return bg
}

func isProcessBackground(fd uintptr) (bool, error) {
	pgid, err := unix.IoctlGetInt(int(fd), unix.TIOCGPGRP)
	return pgid != unix.Getpgrp(), err
}
