package backup

import (
	"path"
	"strings"
)

// VolumeID identifies a content volume by its file name, for example
// "duplicati-b5e3f...dblock.zip".
type VolumeID string

// NewVolumeID returns the VolumeID for a volume file name or path. Index
// documents name volumes with "vol/<file name>".
func NewVolumeID(name string) VolumeID {
	name = strings.ReplaceAll(name, "\\", "/")
	return VolumeID(path.Base(name))
}

func (v VolumeID) String() string { return string(v) }

// Str returns a shortened name for log messages.
func (v VolumeID) Str() string {
	s := strings.TrimPrefix(string(v), "duplicati-")
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
