//go:build !windows

package terminal

import (
	"io"
	"os"

	"golang.org/x/term"
)

// ClearCurrentLine returns a function which removes all characters from the
// current line and resets the cursor position to the first column.
func ClearCurrentLine(_ uintptr) func(io.Writer, uintptr) error {
	return posixClearCurrentLine
}

// MoveCursorUp returns a function which moves the cursor n lines up.
func MoveCursorUp(_ uintptr) func(io.Writer, uintptr, int) error {
	return posixMoveCursorUp
}

// CanUpdateStatus returns true if status lines can be printed, the process
// output is not redirected to a file or pipe.
func CanUpdateStatus(fd uintptr) bool {
	if !term.IsTerminal(int(fd)) {
		return false
	}
	t := os.Getenv("TERM")
	return t != "" && t != "dumb"
}
