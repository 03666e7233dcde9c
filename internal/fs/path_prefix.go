package fs

import (
	"path/filepath"

	"github.com/dupres/dupres/internal/errors"
)

// HasPathPrefix returns true if p is a subdir of (or a file within) base. It
// assumes a file system which is case sensitive. If the paths are not of the
// same type (one is relative, the other is absolute), false is returned.
func HasPathPrefix(base, p string) bool {
	if filepath.VolumeName(base) != filepath.VolumeName(p) {
		return false
	}

	if filepath.IsAbs(base) != filepath.IsAbs(p) {
		return false
	}

	base = filepath.Clean(base)
	p = filepath.Clean(p)

	if base == p {
		return true
	}

	for {
		dir := filepath.Dir(p)
		if base == dir {
			return true
		}
		if p == dir {
			return false
		}
		p = dir
	}
}

// Join appends the slash separated relative path rel to the directory base
// and makes sure the result stays within base.
func Join(base, rel string) (string, error) {
	p := filepath.Join(base, filepath.FromSlash(rel))
	if p == filepath.Clean(base) || !HasPathPrefix(base, p) {
		return "", errors.Errorf("path %q is outside of %v", rel, base)
	}
	return p, nil
}
