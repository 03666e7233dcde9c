// Package fs wraps the file system operations used while restoring.
package fs

import (
	"os"
	"time"
)

// MkdirAll creates a directory named path, along with any necessary parents.
func MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(fixpath(path), perm)
}

// Remove removes the named file or directory.
// If there is an error, it will be of type *PathError.
func Remove(name string) error {
	return os.Remove(fixpath(name))
}

// Rename renames (moves) oldpath to newpath.
// If newpath already exists, Rename replaces it.
// If there is an error, it will be of type *LinkError.
func Rename(oldpath, newpath string) error {
	return os.Rename(fixpath(oldpath), fixpath(newpath))
}

// Symlink creates newname as a symbolic link to oldname.
// If there is an error, it will be of type *LinkError.
func Symlink(oldname, newname string) error {
	return os.Symlink(oldname, fixpath(newname))
}

// Lstat returns the FileInfo structure describing the named file.
// If the file is a symbolic link, the returned FileInfo
// describes the symbolic link.
func Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(fixpath(name))
}

// CreateTemp creates a new temporary file in dir, see os.CreateTemp.
func CreateTemp(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(fixpath(dir), pattern)
}

// Chmod changes the mode of the named file to mode.
func Chmod(name string, mode os.FileMode) error {
	err := os.Chmod(fixpath(name), mode)

	// ignore the error if the FS does not support setting this mode (e.g. CIFS with gvfs on Linux)
	if err != nil && isNotSupported(err) {
		return nil
	}

	return err
}

// Chtimes sets the access and modification time of name. Symlinks are not
// followed, on platforms which cannot change the times of a link this is a
// no-op for symlinks.
func Chtimes(name string, mtime time.Time, symlink bool) error {
	ns := mtime.UnixNano()
	if err := utimesNano(fixpath(name), ns, ns, symlink); err != nil {
		return &os.PathError{Op: "UtimesNano", Path: name, Err: err}
	}
	return nil
}
