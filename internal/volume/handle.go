package volume

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/zip"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
)

var errClosed = errors.New("volume handle closed")

// handle is one volume in the cache. The archive is opened on first use.
type handle struct {
	id backup.VolumeID

	mu      sync.Mutex
	closed  bool
	archive *archive.Archive
	entries map[backup.ID]*zip.File
}

func (h *handle) extract(ctx context.Context, c *Cache, id backup.ID, length int64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errClosed
	}

	if h.archive == nil {
		if err := h.open(ctx, c, id); err != nil {
			h.closed = true
			c.drop(h)
			return nil, err
		}
	}

	f, ok := h.entries[id]
	if !ok {
		return nil, &backup.MissingBlockError{ID: id, Volume: h.id}
	}

	var wrap func(io.Reader) io.Reader
	if c.opts.Limiter != nil {
		wrap = c.opts.Limiter.Downstream
	}

	buf, err := archive.ReadFile(f, wrap)
	if err != nil {
		return nil, errors.Wrapf(err, "volume %v", h.id)
	}

	if got := backup.Hash(buf); got != id {
		debug.Log("block %v in %v hashes to %v", id.Str(), h.id, got.Str())
		return nil, &backup.VerificationError{Want: id, Got: got, What: "block"}
	}

	if int64(len(buf)) != length {
		return nil, &backup.CorruptionError{
			Path:     fmt.Sprintf("block %v in %v", id.Str(), h.id),
			Declared: length,
			Actual:   int64(len(buf)),
		}
	}

	return buf, nil
}

// open locates and opens the volume and builds the entry table. id is the
// block the volume is opened for. h.mu must be held.
func (h *handle) open(ctx context.Context, c *Cache, id backup.ID) error {
	name, err := c.locator.Locate(h.id)
	if err != nil {
		return &backup.MissingBlockError{ID: id, Volume: h.id, Err: err}
	}

	var a *archive.Archive
	op := func() error {
		var err error
		a, err = archive.Open(name)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.OpenRetries)), ctx)
	err = backoff.RetryNotify(op, bo, func(err error, d time.Duration) {
		debug.Log("open %v failed, retrying in %v: %v", name, d, err)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &backup.MissingBlockError{ID: id, Volume: h.id, Err: err}
		}
		return errors.Wrapf(err, "open volume %v", h.id)
	}

	entries, err := h.buildEntries(a, c.opts.Encoding)
	if err != nil {
		_ = a.Close()
		return err
	}

	h.archive = a
	h.entries = entries
	c.opened.Add(1)
	debug.Log("opened volume %v with %d blocks", h.id, len(entries))
	return nil
}

func (h *handle) buildEntries(a *archive.Archive, codec archive.NameCodec) (map[backup.ID]*zip.File, error) {
	files := a.Files()

	if codec == nil {
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, f.Name)
		}

		var err error
		codec, err = archive.DetectCodec(names)
		if err == archive.ErrNoBlockEntries {
			return map[backup.ID]*zip.File{}, nil
		}
		if err != nil {
			return nil, &backup.FormatError{Source: string(h.id), Err: err}
		}
		debug.Log("volume %v uses %v entry names", h.id, codec.Name())
	}

	entries := make(map[backup.ID]*zip.File, len(files))
	for _, f := range files {
		id, err := codec.Decode(f.Name)
		if err != nil {
			// manifest and other non-block entries
			continue
		}
		entries[id] = f
	}
	return entries, nil
}

// close closes the archive, it returns false if h was closed already.
func (h *handle) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.closed = true
	h.release()
	return true
}

func (h *handle) closeErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	return h.release()
}

func (h *handle) release() error {
	h.entries = nil
	if h.archive == nil {
		return nil
	}
	err := h.archive.Close()
	h.archive = nil
	return err
}

func isTransient(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) || errors.Is(err, syscall.EINTR)
}
