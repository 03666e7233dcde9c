package backup

import "time"

// Manifest is one backup version: its properties and the list of entries.
type Manifest struct {
	// Version identifies the backup version, usually its creation timestamp.
	Version    string
	Created    time.Time
	BlockSize  int64
	BlockHash  string
	FileHash   string
	AppVersion string

	Entries []*FileEntry
}

// Stats summarizes the entries of a manifest.
type Stats struct {
	Files, Folders, Symlinks int
	Bytes                    int64
}

// Stats counts the entries by kind and sums up the file sizes.
func (m *Manifest) Stats() Stats {
	var s Stats
	for _, e := range m.Entries {
		switch e.Kind {
		case KindFile:
			s.Files++
			s.Bytes += e.Size
		case KindFolder:
			s.Folders++
		case KindSymlink:
			s.Symlinks++
		}
	}
	return s
}
