// Package fixture writes synthetic backup sets (dlist, dindex and dblock
// containers) for tests.
package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
)

// TimeFormat is the timestamp format used in file names and documents.
const TimeFormat = "20060102T150405Z"

// Entry is one record of the file list, as written to filelist.json. Tests
// may modify entries before calling Write.
type Entry struct {
	Type       string   `json:"type"`
	Path       string   `json:"path"`
	Hash       string   `json:"hash,omitempty"`
	Size       *int64   `json:"size,omitempty"`
	Time       string   `json:"time,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Target     string   `json:"target,omitempty"`
	MetaHash   string   `json:"metahash,omitempty"`
	MetaSize   int64    `json:"metasize,omitempty"`
	Blocklists []string `json:"blocklists,omitempty"`

	// Content is the expected restored content of a file.
	Content []byte `json:"-"`
}

// Volume collects blocks for one dblock container.
type Volume struct {
	Name  string
	Codec archive.NameCodec

	// Skip leaves the volume out when the set is written, as if it was lost.
	Skip bool
	// NoIndex leaves out the dindex container describing the volume.
	NoIndex bool

	order  []backup.ID
	blocks map[backup.ID][]byte
	lists  []backup.ID
}

// Add stores data as a block in the volume and returns its hash.
func (v *Volume) Add(data []byte) backup.ID {
	id := backup.Hash(data)
	if _, ok := v.blocks[id]; !ok {
		v.order = append(v.order, id)
		v.blocks[id] = append([]byte(nil), data...)
	}
	return id
}

// Set is a backup set under construction.
type Set struct {
	tb  testing.TB
	Dir string

	Time       time.Time
	BlockSize  int
	BlockHash  string
	Volumes    []*Volume
	Entries    []*Entry
	blocklists map[backup.ID][]backup.ID

	// Paths of the written containers.
	ManifestPath string
	IndexPaths   []string
}

// New returns an empty set that is written to dir.
func New(tb testing.TB, dir string) *Set {
	return &Set{
		tb:         tb,
		Dir:        dir,
		Time:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		BlockSize:  100000,
		BlockHash:  "SHA256",
		blocklists: make(map[backup.ID][]backup.ID),
	}
}

// NewVolume adds a new, empty content volume.
func (s *Set) NewVolume() *Volume {
	v := &Volume{
		Name:   fmt.Sprintf("duplicati-b%032x.dblock.zip", len(s.Volumes)+1),
		Codec:  archive.Base64URL,
		blocks: make(map[backup.ID][]byte),
	}
	s.Volumes = append(s.Volumes, v)
	return v
}

// AddFolder adds a folder entry.
func (s *Set) AddFolder(path string) *Entry {
	e := &Entry{Type: "Folder", Path: path, MetaHash: backup.Hash([]byte(path)).Base64(), MetaSize: 42}
	s.Entries = append(s.Entries, e)
	return e
}

// AddSymlink adds a symlink entry.
func (s *Set) AddSymlink(path, target string) *Entry {
	e := &Entry{Type: "Symlink", Path: path, Target: target, MetaHash: backup.Hash([]byte(path)).Base64(), MetaSize: 42}
	s.Entries = append(s.Entries, e)
	return e
}

// AddFile splits data into blocks of BlockSize bytes, stores them in vol
// and adds a file entry.
func (s *Set) AddFile(path string, data []byte, vol *Volume) *Entry {
	var chunks [][]byte
	for len(data) > s.BlockSize {
		chunks = append(chunks, data[:s.BlockSize])
		data = data[s.BlockSize:]
	}
	if len(data) > 0 {
		chunks = append(chunks, data)
	}

	vols := make([]*Volume, len(chunks))
	for i := range vols {
		vols[i] = vol
	}
	return s.AddFileChunks(path, chunks, vols)
}

// AddFileChunks adds a file made of the given blocks, chunks[i] is stored
// in vols[i]. Files with more than one chunk get blocklists, which are
// stored in the volume of the first chunk.
func (s *Set) AddFileChunks(path string, chunks [][]byte, vols []*Volume) *Entry {
	var content []byte
	var ids []backup.ID
	for i, chunk := range chunks {
		ids = append(ids, vols[i].Add(chunk))
		content = append(content, chunk...)
	}

	size := int64(len(content))
	e := &Entry{
		Type:     "File",
		Path:     path,
		Hash:     backup.Hash(content).Base64(),
		Size:     &size,
		Time:     s.Time.Add(-time.Hour).Format(TimeFormat),
		MetaHash: backup.Hash([]byte(path)).Base64(),
		MetaSize: 42,
		Content:  content,
	}

	if len(ids) > 1 {
		perList := s.BlockSize / 32
		for len(ids) > 0 {
			n := perList
			if n > len(ids) {
				n = len(ids)
			}
			listID := s.AddBlocklist(vols[0], ids[:n]...)
			e.Blocklists = append(e.Blocklists, listID.Base64())
			ids = ids[n:]
		}
	}

	s.Entries = append(s.Entries, e)
	return e
}

// AddBlocklist stores a blocklist with the given hashes in vol and the
// volume's index. It returns the blocklist hash.
func (s *Set) AddBlocklist(vol *Volume, ids ...backup.ID) backup.ID {
	payload := make([]byte, 0, 32*len(ids))
	for _, id := range ids {
		payload = append(payload, id[:]...)
	}
	listID := vol.Add(payload)
	if _, ok := s.blocklists[listID]; !ok {
		vol.lists = append(vol.lists, listID)
		s.blocklists[listID] = append([]backup.ID(nil), ids...)
	}
	return listID
}

// VolumePath returns the file name of vol inside the set directory.
func (s *Set) VolumePath(vol *Volume) string {
	return filepath.Join(s.Dir, vol.Name)
}

// VolumePaths returns the paths of all volumes which are written.
func (s *Set) VolumePaths() []string {
	var list []string
	for _, vol := range s.Volumes {
		if !vol.Skip {
			list = append(list, s.VolumePath(vol))
		}
	}
	return list
}

// Write writes the dlist, one dindex per volume and all dblock containers.
func (s *Set) Write() {
	s.tb.Helper()

	s.IndexPaths = nil
	for i, vol := range s.Volumes {
		volumeData := s.writeVolume(vol)
		if !vol.Skip {
			s.writeFile(vol.Name, volumeData)
		}
		if vol.NoIndex {
			continue
		}
		name := fmt.Sprintf("duplicati-i%032x.dindex.zip", i+1)
		s.writeFile(name, s.indexData(vol, volumeData))
		s.IndexPaths = append(s.IndexPaths, filepath.Join(s.Dir, name))
	}

	name := fmt.Sprintf("duplicati-%s.dlist.zip", s.Time.Format(TimeFormat))
	s.writeFile(name, s.manifestData())
	s.ManifestPath = filepath.Join(s.Dir, name)
}

func (s *Set) writeFile(name string, data []byte) {
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0644); err != nil {
		s.tb.Fatal(err)
	}
}

func (s *Set) manifestDoc() []byte {
	return s.json(map[string]interface{}{
		"Version":    2,
		"Created":    s.Time.Format(TimeFormat),
		"Encoding":   "utf8",
		"Blocksize":  s.BlockSize,
		"BlockHash":  s.BlockHash,
		"FileHash":   "SHA256",
		"AppVersion": "2.0.7.1",
	})
}

func (s *Set) writeVolume(vol *Volume) []byte {
	entries := []zipEntry{{"manifest", s.manifestDoc()}}
	for _, id := range vol.order {
		entries = append(entries, zipEntry{vol.Codec.Encode(id), vol.blocks[id]})
	}
	return s.zip(entries)
}

func (s *Set) indexData(vol *Volume, volumeData []byte) []byte {
	type block struct {
		Hash string `json:"hash"`
		Size int    `json:"size"`
	}
	doc := struct {
		Blocks     []block `json:"blocks"`
		VolumeHash string  `json:"volumehash"`
		VolumeSize int     `json:"volumesize"`
	}{
		VolumeHash: backup.Hash(volumeData).Base64(),
		VolumeSize: len(volumeData),
	}
	for _, id := range vol.order {
		doc.Blocks = append(doc.Blocks, block{Hash: id.Base64(), Size: len(vol.blocks[id])})
	}

	entries := []zipEntry{
		{"manifest", s.manifestDoc()},
		{"vol/" + vol.Name, s.json(doc)},
	}
	for _, listID := range vol.lists {
		entries = append(entries, zipEntry{"list/" + listID.Base64URL(), vol.blocks[listID]})
	}
	return s.zip(entries)
}

func (s *Set) manifestData() []byte {
	return s.zip([]zipEntry{
		{"manifest", s.manifestDoc()},
		{"filelist.json", s.json(s.Entries)},
	})
}

type zipEntry struct {
	name string
	data []byte
}

func (s *Set) zip(entries []zipEntry) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			s.tb.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			s.tb.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		s.tb.Fatal(err)
	}
	return buf.Bytes()
}

func (s *Set) json(v interface{}) []byte {
	buf, err := json.Marshal(v)
	if err != nil {
		s.tb.Fatal(err)
	}
	return buf
}

// ZipFile writes a zip container with the given entries to dir/name and
// returns its path. Entries are written in sorted order.
func ZipFile(tb testing.TB, dir, name string, entries map[string][]byte) string {
	s := &Set{tb: tb, Dir: dir}
	var list []zipEntry
	for _, n := range sortedKeys(entries) {
		list = append(list, zipEntry{n, entries[n]})
	}
	s.writeFile(name, s.zip(list))
	return filepath.Join(dir, name)
}
