package fs

import (
	"golang.org/x/sys/windows"

	"github.com/dupres/dupres/internal/debug"
)

// utimesNano is like syscall.UtimesNano, except that it sets FILE_FLAG_OPEN_REPARSE_POINT.
func utimesNano(path string, atime, mtime int64, _ bool) error {
	pathp, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(pathp,
		windows.FILE_WRITE_ATTRIBUTES, windows.FILE_SHARE_WRITE, nil, windows.OPEN_EXISTING,
		windows.FILE_FLAG_BACKUP_SEMANTICS|windows.FILE_FLAG_OPEN_REPARSE_POINT, 0)
	if err != nil {
		return err
	}

	defer func() {
		if err := windows.CloseHandle(h); err != nil {
			debug.Log("error closing file handle for %s: %v", path, err)
		}
	}()

	a := windows.NsecToFiletime(atime)
	w := windows.NsecToFiletime(mtime)
	return windows.SetFileTime(h, nil, &a, &w)
}
