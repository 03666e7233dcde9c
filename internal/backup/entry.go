package backup

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dupres/dupres/internal/errors"
)

// EntryKind is the type of a FileEntry.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindFolder
	KindSymlink
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("EntryKind(%d)", uint8(k))
	}
}

// FileEntry is one item of a backup version.
type FileEntry struct {
	// Path as recorded by the backup, possibly a Windows path such as
	// `C:\Users\me\file.txt`. Folders usually end with a separator.
	Path string
	Kind EntryKind
	Size int64
	// Hash is the hash of the whole file content.
	Hash    ID
	ModTime time.Time
	// Mode holds the permission bits, HasMode is false if the backup did not
	// record them.
	Mode    os.FileMode
	HasMode bool
	// Target is the link target of a symlink.
	Target string
	Ref    BlockRef
}

func (e *FileEntry) String() string {
	return fmt.Sprintf("<%v %q size %d %v>", e.Kind, e.Path, e.Size, e.Ref)
}

// IsDir returns true for folders.
func (e *FileEntry) IsDir() bool { return e.Kind == KindFolder }

// RelPath converts the stored path into a clean, slash separated path
// relative to the restore destination. Drive letters become a first
// directory ("C:\x" turns into "C/x"). Unless keepBackslashes is set,
// backslashes are treated as separators.
func (e *FileEntry) RelPath(keepBackslashes bool) (string, error) {
	p := e.Path
	if isDrivePrefix(p) {
		p = p[:1] + p[2:]
	}
	if strings.HasPrefix(p, `\\`) {
		// UNC path, \\server\share\x
		p = p[2:]
	}
	if !keepBackslashes {
		p = strings.ReplaceAll(p, `\`, "/")
	}

	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return "", errors.Errorf("path %q leaves the restore destination", e.Path)
		}
	}

	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." {
		return "", errors.Errorf("path %q is empty after normalization", e.Path)
	}
	return p, nil
}

// isDrivePrefix reports whether p starts with a drive such as "C:" or "C:\".
// A colon in a name like "a:b.txt" is kept.
func isDrivePrefix(p string) bool {
	if len(p) < 2 || p[1] != ':' || !isDriveLetter(p[0]) {
		return false
	}
	return len(p) == 2 || p[2] == '\\' || p[2] == '/'
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Depth returns the number of path elements of a cleaned relative path.
func Depth(rel string) int {
	return strings.Count(rel, "/") + 1
}
