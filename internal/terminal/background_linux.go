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
	// pid_t is 32 bit even on 64 bit platforms
	pid, err := unix.IoctlGetUint32(int(fd), unix.TIOCGPGRP)
	return int(pid) != unix.Getpgrp(), err
}
