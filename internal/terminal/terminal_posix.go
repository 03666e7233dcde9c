package terminal

import (
	"bytes"
	"io"
)

const (
	posixMoveCursorHome      = "\r"
	posixControlMoveCursorUp = "\x1b[1A"
	posixClearLine           = "\x1b[2K"
)

func posixClearCurrentLine(wr io.Writer, _ uintptr) error {
	_, err := wr.Write([]byte(posixMoveCursorHome + posixClearLine))
	return err
}

func posixMoveCursorUp(wr io.Writer, _ uintptr, n int) error {
	data := []byte(posixMoveCursorHome)
	data = append(data, bytes.Repeat([]byte(posixControlMoveCursorUp), n)...)
	_, err := wr.Write(data)
	return err
}
