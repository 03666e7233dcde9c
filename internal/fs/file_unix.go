//go:build !windows

package fs

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func fixpath(name string) string {
	return name
}

// isNotSupported returns true if the error is caused by an unsupported file system feature.
func isNotSupported(err error) bool {
	var perr *os.PathError
	return errors.As(err, &perr) && perr.Err == unix.ENOTSUP
}

// IsDiskFull returns true if err reports an exhausted file system or quota.
func IsDiskFull(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT)
}
