// Package manifest reads the file list of one backup version from a dlist
// container.
package manifest

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
)

// TimeFormat is the timestamp format of the Created field, the file list and
// the dlist file names.
const TimeFormat = "20060102T150405Z"

const (
	fileListName = "filelist.json"
	manifestName = "manifest"
	hashSHA256   = "SHA256"
)

var nameTimestamp = regexp.MustCompile(`(\d{8}T\d{6}Z)\.dlist\.zip`)

// properties is the content of the manifest entry found in every container.
type properties struct {
	Version    int
	Created    string
	Encoding   string
	Blocksize  int64
	BlockHash  string
	FileHash   string
	AppVersion string
}

type entry struct {
	Type          *string         `json:"type"`
	Path          *string         `json:"path"`
	Hash          string          `json:"hash"`
	Size          *int64          `json:"size"`
	Time          string          `json:"time"`
	Mode          json.RawMessage `json:"mode"`
	Target        *string         `json:"target"`
	MetaHash      string          `json:"metahash"`
	MetaSize      int64           `json:"metasize"`
	MetaBlockHash string          `json:"metablockhash"`
	Blocklists    []string        `json:"blocklists"`
}

// Read loads the manifest stored in the dlist container at path.
func Read(path string) (*backup.Manifest, error) {
	if strings.HasSuffix(path, ".aes") {
		return nil, &backup.FormatError{Source: path, Err: archive.ErrEncrypted}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open manifest")
	}
	defer func() {
		_ = f.Close()
	}()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return ReadFrom(f, fi.Size(), path)
}

// ReadFrom loads a manifest from the dlist container in rd. name is used for
// the version fallback and in errors.
func ReadFrom(rd io.ReaderAt, size int64, name string) (*backup.Manifest, error) {
	a, err := archive.NewReader(name, rd, size)
	if err != nil {
		return nil, &backup.FormatError{Source: name, Err: err}
	}

	m := &backup.Manifest{}

	if f := a.Lookup(manifestName); f != nil {
		var props properties
		if err := archive.DecodeJSON(f, &props); err != nil {
			return nil, &backup.FormatError{Source: name, Err: err}
		}
		if err := apply(m, props); err != nil {
			return nil, &backup.FormatError{Source: name, Err: err}
		}
	}

	if m.Version == "" {
		m.Version = versionFromName(name)
	}

	f := a.Lookup(fileListName)
	if f == nil {
		return nil, backup.NewFormatError(name, "no %v in container", fileListName)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &backup.FormatError{Source: name, Err: errors.Wrapf(err, "open %v", fileListName)}
	}
	defer func() {
		_ = rc.Close()
	}()

	m.Entries, err = decodeEntries(archive.NewTextReader(rc))
	if err != nil {
		return nil, &backup.FormatError{Source: name, Err: err}
	}

	debug.Log("manifest %v, version %v: %d entries", name, m.Version, len(m.Entries))
	return m, nil
}

func apply(m *backup.Manifest, props properties) error {
	if props.BlockHash != "" && !strings.EqualFold(props.BlockHash, hashSHA256) {
		return errors.Errorf("unsupported block hash %q", props.BlockHash)
	}
	if props.FileHash != "" && !strings.EqualFold(props.FileHash, hashSHA256) {
		return errors.Errorf("unsupported file hash %q", props.FileHash)
	}

	m.BlockSize = props.Blocksize
	m.BlockHash = props.BlockHash
	m.FileHash = props.FileHash
	m.AppVersion = props.AppVersion

	if props.Created != "" {
		t, err := time.Parse(TimeFormat, props.Created)
		if err != nil {
			return errors.Wrap(err, "invalid Created timestamp")
		}
		m.Created = t
		m.Version = props.Created
	}
	return nil
}

func versionFromName(name string) string {
	base := filepath.Base(name)
	if match := nameTimestamp.FindStringSubmatch(base); match != nil {
		return match[1]
	}
	return base
}

// decodeEntries reads the file list array one element at a time.
func decodeEntries(rd io.Reader) ([]*backup.FileEntry, error) {
	dec := json.NewDecoder(rd)

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "decode file list")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.Errorf("file list is not an array")
	}

	var entries []*backup.FileEntry
	for i := 0; dec.More(); i++ {
		var raw entry
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrapf(err, "decode entry %d", i)
		}

		e, err := convert(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		entries = append(entries, e)
	}

	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, "decode file list")
	}
	return entries, nil
}

func convert(raw entry) (*backup.FileEntry, error) {
	if raw.Type == nil {
		return nil, errors.New("missing field type")
	}
	if raw.Path == nil || *raw.Path == "" {
		return nil, errors.New("missing field path")
	}

	e := &backup.FileEntry{Path: *raw.Path}

	switch *raw.Type {
	case "File":
		e.Kind = backup.KindFile
	case "Folder":
		e.Kind = backup.KindFolder
	case "Symlink":
		e.Kind = backup.KindSymlink
	default:
		return nil, errors.Errorf("unknown type %q", *raw.Type)
	}

	if raw.Time != "" {
		t, err := time.Parse(TimeFormat, raw.Time)
		if err != nil {
			return nil, errors.Wrap(err, "invalid field time")
		}
		e.ModTime = t
	}

	if len(raw.Mode) > 0 && string(raw.Mode) != "null" {
		mode, err := parseMode(raw.Mode)
		if err != nil {
			return nil, err
		}
		e.Mode = mode
		e.HasMode = true
	}

	if raw.Target != nil {
		e.Target = *raw.Target
	}

	if e.Kind != backup.KindFile {
		return e, nil
	}

	if raw.Size == nil {
		return nil, errors.New("missing field size")
	}
	if *raw.Size < 0 {
		return nil, errors.Errorf("invalid size %d", *raw.Size)
	}
	e.Size = *raw.Size

	if raw.Hash == "" {
		return nil, errors.New("missing field hash")
	}
	hash, err := backup.ParseBase64(raw.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "invalid field hash")
	}
	e.Hash = hash

	switch {
	case e.Size == 0:
		e.Ref = backup.Empty()
	case len(raw.Blocklists) > 0:
		ids := make(backup.IDs, 0, len(raw.Blocklists))
		for _, s := range raw.Blocklists {
			id, err := backup.ParseBase64(s)
			if err != nil {
				return nil, errors.Wrap(err, "invalid field blocklists")
			}
			ids = append(ids, id)
		}
		e.Ref = backup.BlockList(ids...)
	default:
		e.Ref = backup.Direct(hash)
	}

	return e, nil
}

// parseMode accepts the permission bits as a number or as an octal string.
func parseMode(raw json.RawMessage) (os.FileMode, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.ParseUint(s, 8, 32)
		if err != nil {
			return 0, errors.Wrap(err, "invalid field mode")
		}
		return os.FileMode(v).Perm(), nil
	}

	var v uint32
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errors.Wrap(err, "invalid field mode")
	}
	return os.FileMode(v).Perm(), nil
}
