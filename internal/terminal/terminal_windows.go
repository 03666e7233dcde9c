package terminal

import (
	"io"
	"os"

	"golang.org/x/sys/windows"
)

// ClearCurrentLine returns a function which removes all characters from the
// current line and resets the cursor position to the first column.
func ClearCurrentLine(fd uintptr) func(io.Writer, uintptr) error {
	if !CanUpdateStatus(fd) {
		return func(io.Writer, uintptr) error { return nil }
	}
	return posixClearCurrentLine
}

// MoveCursorUp returns a function which moves the cursor n lines up.
func MoveCursorUp(fd uintptr) func(io.Writer, uintptr, int) error {
	if !CanUpdateStatus(fd) {
		return func(io.Writer, uintptr, int) error { return nil }
	}
	return posixMoveCursorUp
}

// CanUpdateStatus returns true if status lines can be printed. Consoles are
// switched to virtual terminal processing, pipes are assumed to be a mintty
// or cygwin terminal if TERM is set.
func CanUpdateStatus(fd uintptr) bool {
	h := windows.Handle(fd)

	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err == nil {
		if mode&windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING != 0 {
			return true
		}
		return windows.SetConsoleMode(h, mode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING) == nil
	}

	ft, err := windows.GetFileType(h)
	if err != nil || ft != windows.FILE_TYPE_PIPE {
		return false
	}
	t := os.Getenv("TERM")
	return t != "" && t != "dumb"
}
