//go:build !linux && unix

package fs

import (
	"golang.org/x/sys/unix"
)

// utimesNano is like syscall.UtimesNano, except that it skips symlinks.
func utimesNano(path string, atime, mtime int64, symlink bool) error {
	if symlink {
		return nil
	}

	return unix.UtimesNano(path, []unix.Timespec{
		unix.NsecToTimespec(atime),
		unix.NsecToTimespec(mtime),
	})
}
