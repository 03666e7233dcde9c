// Package locate finds the containers of a backup set in a directory.
package locate

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
)

const (
	manifestSuffix = ".dlist.zip"
	indexSuffix    = ".dindex.zip"
	volumeSuffix   = ".dblock.zip"

	timeFormat = "20060102T150405Z"
)

var versionName = regexp.MustCompile(`(\d{8}T\d{6}Z)\.dlist\.zip$`)

// Version is one manifest of a backup set.
type Version struct {
	Name string
	Path string
	// Time is taken from the name, it is zero if the name has no timestamp.
	Time time.Time
}

// ID returns the timestamp part of the name, or the name itself.
func (v Version) ID() string {
	if m := versionName.FindStringSubmatch(v.Name); m != nil {
		return m[1]
	}
	return v.Name
}

// Set lists the containers found in a directory.
type Set struct {
	Dir      string
	versions []Version
	indexes  []string
	volumes  map[backup.VolumeID]string
}

// Scan classifies the containers in dir. Encrypted containers are rejected.
func Scan(dir string) (*Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "scan backup directory")
	}

	s := &Set{Dir: dir, volumes: make(map[backup.VolumeID]string)}
	var encrypted []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		p := filepath.Join(dir, name)

		switch {
		case strings.HasSuffix(name, manifestSuffix):
			v := Version{Name: name, Path: p}
			if m := versionName.FindStringSubmatch(name); m != nil {
				v.Time, _ = time.Parse(timeFormat, m[1])
			}
			s.versions = append(s.versions, v)
		case strings.HasSuffix(name, indexSuffix):
			s.indexes = append(s.indexes, p)
		case strings.HasSuffix(name, volumeSuffix):
			s.volumes[backup.NewVolumeID(name)] = p
		case isEncrypted(name):
			encrypted = append(encrypted, name)
		}
	}

	if len(encrypted) > 0 {
		return nil, errors.Wrapf(archive.ErrEncrypted, "%d containers in %v, e.g. %v", len(encrypted), dir, encrypted[0])
	}

	sort.SliceStable(s.versions, func(i, j int) bool {
		vi, vj := s.versions[i], s.versions[j]
		if !vi.Time.Equal(vj.Time) {
			return vi.Time.After(vj.Time)
		}
		return vi.Name > vj.Name
	})
	sort.Strings(s.indexes)

	debug.Log("%v: %d versions, %d index files, %d volumes", dir, len(s.versions), len(s.indexes), len(s.volumes))
	return s, nil
}

func isEncrypted(name string) bool {
	for _, suffix := range []string{manifestSuffix, indexSuffix, volumeSuffix} {
		if strings.HasSuffix(name, suffix+".aes") {
			return true
		}
	}
	return false
}

// Versions returns all manifests, newest first.
func (s *Set) Versions() []Version {
	return s.versions
}

// Indexes returns the paths of all index containers.
func (s *Set) Indexes() []string {
	return s.indexes
}

// Volumes returns the number of content volumes.
func (s *Set) Volumes() int {
	return len(s.volumes)
}

// VolumeFiles returns the paths of all content volumes, sorted.
func (s *Set) VolumeFiles() []string {
	list := make([]string, 0, len(s.volumes))
	for _, p := range s.volumes {
		list = append(list, p)
	}
	sort.Strings(list)
	return list
}

// Select returns the version named by sel. An empty string or "latest"
// selects the newest version, a small number n selects the n-th version
// counting back from the newest (0 is the newest). Otherwise sel must match
// the timestamp or the file name of a manifest.
func (s *Set) Select(sel string) (Version, error) {
	if len(s.versions) == 0 {
		return Version{}, errors.Errorf("no %v files found in %v", manifestSuffix, s.Dir)
	}

	if sel == "" || sel == "latest" {
		return s.versions[0], nil
	}

	if n, err := strconv.Atoi(sel); err == nil && len(sel) < 8 {
		if n < 0 || n >= len(s.versions) {
			return Version{}, errors.Errorf("version %d does not exist, the backup set has %d versions", n, len(s.versions))
		}
		return s.versions[n], nil
	}

	for _, v := range s.versions {
		if v.ID() == sel || v.Name == sel {
			return v, nil
		}
	}
	return Version{}, errors.Errorf("version %q not found", sel)
}

// Locate returns the path of the content volume id.
func (s *Set) Locate(id backup.VolumeID) (string, error) {
	p, ok := s.volumes[id]
	if !ok {
		return "", errors.Wrapf(os.ErrNotExist, "volume %v not found in %v", id, s.Dir)
	}
	return p, nil
}
