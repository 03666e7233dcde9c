package restorer

import (
	"context"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/fs"
	restoreui "github.com/dupres/dupres/internal/ui/restore"

	"github.com/minio/sha256-simd"
)

const (
	tempPrefix      = ".dupres-"
	defaultFileMode = os.FileMode(0644)
	defaultDirMode  = os.FileMode(0755)
)

// restoreFile reconstructs a regular file from its blocks and returns the
// number of bytes written.
func (res *Restorer) restoreFile(ctx context.Context, t *task) (int64, error) {
	e := t.entry
	if ctx.Err() != nil {
		return 0, errors.Wrap(backup.ErrCancelled, "not started")
	}

	if size := t.blocks.Size(); size != e.Size {
		return 0, &backup.CorruptionError{Path: e.Path, Declared: e.Size, Actual: size}
	}

	action := restoreui.ActionFileRestored
	if res.opts.DryRun {
		action = restoreui.ActionFileVerified
	}

	unlock := res.locks.lock(t.target)
	defer unlock()

	var out io.Writer = io.Discard
	var tmp *os.File
	if !res.opts.DryRun {
		var err error
		tmp, err = fs.CreateTemp(filepath.Dir(t.target), tempPrefix+"*.tmp")
		if err != nil {
			return 0, errors.Wrap(err, "create temp file")
		}
		defer func() {
			if tmp != nil {
				_ = tmp.Close()
				_ = fs.Remove(tmp.Name())
			}
		}()
		out = tmp
	}

	var h hash.Hash
	if e.Ref.Kind == backup.RefBlockList {
		h = sha256.New()
		out = io.MultiWriter(out, h)
	}

	var written int64
	var last uint64
	for _, b := range t.blocks {
		if ctx.Err() != nil {
			return written, errors.Wrapf(backup.ErrCancelled, "interrupted after %d bytes", written)
		}

		buf, err := res.fetcher.Fetch(ctx, b.ID)
		if err != nil {
			return written, err
		}

		n, err := out.Write(buf)
		written += int64(n)
		if err != nil {
			return written, errors.Wrap(err, "write")
		}

		// the final chunk is reported once the file is in place
		if written < e.Size {
			res.opts.Progress.AddProgress(e.Path, action, uint64(n), uint64(e.Size))
		} else {
			last += uint64(n)
		}
	}

	if written != e.Size {
		return written, &backup.CorruptionError{Path: e.Path, Declared: e.Size, Actual: written}
	}

	if h != nil {
		got, err := backup.IDFromBytes(h.Sum(nil))
		if err != nil {
			return written, err
		}
		if got != e.Hash {
			return written, &backup.VerificationError{Want: e.Hash, Got: got, What: "file " + e.Path}
		}
	}

	if tmp != nil {
		if err := res.commit(tmp, t); err != nil {
			return written, err
		}
		tmp = nil
		res.applyFileMetadata(t)
	}

	res.opts.Progress.AddProgress(e.Path, action, last, uint64(e.Size))
	return written, nil
}

// commit moves the completed temporary file to the destination.
func (res *Restorer) commit(tmp *os.File, t *task) error {
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close")
	}
	if err := fs.Rename(tmp.Name(), t.target); err != nil {
		_ = fs.Remove(tmp.Name())
		return errors.Wrap(err, "rename")
	}
	return nil
}

// applyFileMetadata sets mode and modification time of a restored file. The
// content is in place at this point, failures are only logged.
func (res *Restorer) applyFileMetadata(t *task) {
	mode := defaultFileMode
	if t.entry.HasMode {
		mode = t.entry.Mode
	}
	if err := fs.Chmod(t.target, mode); err != nil {
		debug.Log("chmod %v: %v", t.target, err)
	}
	if !t.entry.ModTime.IsZero() {
		if err := fs.Chtimes(t.target, t.entry.ModTime, false); err != nil {
			debug.Log("chtimes %v: %v", t.target, err)
		}
	}
}

// restoreSymlink creates the link at a temporary name and renames it over
// the destination.
func (res *Restorer) restoreSymlink(ctx context.Context, t *task) error {
	e := t.entry
	if ctx.Err() != nil {
		return errors.Wrap(backup.ErrCancelled, "not started")
	}
	if e.Target == "" {
		return &backup.FormatError{Source: e.Path, Err: errors.New("symlink without target")}
	}
	if res.opts.DryRun {
		res.opts.Progress.AddProgress(e.Path, restoreui.ActionSymlinkCreated, 0, 0)
		return nil
	}

	unlock := res.locks.lock(t.target)
	defer unlock()

	tmp, err := fs.CreateTemp(filepath.Dir(t.target), tempPrefix+"*.lnk")
	if err != nil {
		return errors.Wrap(err, "create temp name")
	}
	name := tmp.Name()
	_ = tmp.Close()
	if err := fs.Remove(name); err != nil {
		return errors.Wrap(err, "remove")
	}

	if err := fs.Symlink(e.Target, name); err != nil {
		return errors.Wrap(err, "symlink")
	}
	if err := fs.Rename(name, t.target); err != nil {
		_ = fs.Remove(name)
		return errors.Wrap(err, "rename")
	}

	if !e.ModTime.IsZero() {
		if err := fs.Chtimes(t.target, e.ModTime, true); err != nil {
			debug.Log("chtimes %v: %v", t.target, err)
		}
	}

	res.opts.Progress.AddProgress(e.Path, restoreui.ActionSymlinkCreated, 0, 0)
	return nil
}
