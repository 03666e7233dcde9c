// Package archive gives read access to the zip containers of a backup set:
// the dlist manifests, the dindex index files and the dblock content volumes.
package archive

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"

	"github.com/klauspost/compress/zip"
)

// ErrEncrypted is returned for AES encrypted containers, which cannot be
// restored without the producing application.
var ErrEncrypted = errors.New("encrypted containers are not supported, decrypt the backup set first")

const maxSizeHint = 64 << 20

// Archive is an open zip container. An Archive is not safe for concurrent use.
type Archive struct {
	name string
	file io.Closer
	zr   *zip.Reader
}

// Open opens the zip container at name.
func Open(name string) (*Archive, error) {
	if strings.HasSuffix(name, ".aes") {
		return nil, errors.Wrap(ErrEncrypted, name)
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.WithStack(err)
	}

	a, err := NewReader(name, f, fi.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	a.file = f
	return a, nil
}

// NewReader reads a zip container from rd. name is only used in messages.
func NewReader(name string, rd io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(rd, size)
	if err != nil {
		return nil, errors.Wrapf(err, "open zip %v", name)
	}

	debug.Log("opened %v with %d entries", name, len(zr.File))
	return &Archive{name: name, zr: zr}, nil
}

// Name returns the name the archive was opened with.
func (a *Archive) Name() string { return a.name }

// Files returns all entries in archive order.
func (a *Archive) Files() []*zip.File { return a.zr.File }

// Lookup returns the entry called name or nil.
func (a *Archive) Lookup(name string) *zip.File {
	for _, f := range a.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ReadFile decompresses f completely. If wrap is not nil, it wraps the
// decompressing reader, for example to limit the read rate.
func ReadFile(f *zip.File, wrap func(io.Reader) io.Reader) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open entry %v", f.Name)
	}

	var rd io.Reader = rc
	if wrap != nil {
		rd = wrap(rc)
	}

	// the header size is only a hint, a broken header must not allocate gigabytes
	sizeHint := f.UncompressedSize64
	if sizeHint > maxSizeHint {
		sizeHint = maxSizeHint
	}
	buf := make([]byte, 0, int(sizeHint))
	buf, err = readAll(rd, buf)
	if cerr := rc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read entry %v", f.Name)
	}
	return buf, nil
}

func readAll(rd io.Reader, buf []byte) ([]byte, error) {
	for {
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, err := rd.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return buf, err
		}
	}
}

// DecodeJSON decodes the JSON document stored in entry f into v. Byte order
// marks and UTF-16 encodings are handled.
func DecodeJSON(f *zip.File, v interface{}) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "open entry %v", f.Name)
	}
	defer func() {
		_ = rc.Close()
	}()

	dec := json.NewDecoder(NewTextReader(rc))
	if err := dec.Decode(v); err != nil {
		return errors.Wrapf(err, "decode %v", f.Name)
	}
	return nil
}

// Close closes the underlying file, if any.
func (a *Archive) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
