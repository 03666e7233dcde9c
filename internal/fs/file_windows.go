package fs

import (
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// fixpath returns an absolute path with the \\?\ prefix, so long file names
// can be accessed.
func fixpath(name string) string {
	abspath, err := filepath.Abs(name)
	if err != nil {
		return name
	}

	switch {
	case strings.HasPrefix(abspath, `\\?\`):
		return abspath
	case strings.HasPrefix(abspath, `\\`):
		return strings.Replace(abspath, `\\`, `\\?\UNC\`, 1)
	default:
		return `\\?\` + abspath
	}
}

func isNotSupported(_ error) bool {
	return false
}

// IsDiskFull returns true if err reports an exhausted file system or quota.
func IsDiskFull(err error) bool {
	return errors.Is(err, windows.ERROR_DISK_FULL) || errors.Is(err, windows.ERROR_HANDLE_DISK_FULL)
}
