// Package terminal detects terminal capabilities and writes the control
// sequences used for updatable status lines.
package terminal

import (
	"golang.org/x/term"
)

// OutputIsTerminal returns true if fd refers to a terminal.
func OutputIsTerminal(fd uintptr) bool {
	// mintty on windows uses pipes which behave like a posix terminal
	return term.IsTerminal(int(fd)) || CanUpdateStatus(fd)
}

// Width returns the number of columns of the terminal fd, or zero if the
// width is unknown.
func Width(fd uintptr) int {
	w, _, err := term.GetSize(int(fd))
	if err != nil {
		return 0
	}
	return w
}
