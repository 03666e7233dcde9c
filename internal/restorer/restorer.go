package restorer

import (
	"context"
	"path"
	"runtime"
	"sort"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/fs"
	"github.com/dupres/dupres/internal/resolver"
	"github.com/dupres/dupres/internal/ui/progress"
	restoreui "github.com/dupres/dupres/internal/ui/restore"

	"golang.org/x/sync/errgroup"
)

// Fetcher returns the verified payload of a block.
type Fetcher interface {
	Fetch(ctx context.Context, id backup.ID) ([]byte, error)
}

// Options configure a restore run.
type Options struct {
	// Concurrency is the number of files restored at the same time, zero
	// selects GOMAXPROCS.
	Concurrency int
	// MaxOpenVolumes bounds the number of content volumes open at the same
	// time, zero selects the volume cache default.
	MaxOpenVolumes int
	// Encoding forces the block name codec of the content volumes, nil
	// detects it per volume.
	Encoding archive.NameCodec
	// DryRun fetches and verifies all data without writing anything.
	DryRun bool
	// KeepBackslashes keeps backslashes in paths instead of treating them
	// as separators.
	KeepBackslashes bool
	// ReadLimitKiB limits reading from volumes to KiB/s, zero is unlimited.
	ReadLimitKiB int
	// PayloadCacheSize is the size in bytes of the cache of verified blocks.
	PayloadCacheSize int

	Progress *restoreui.Progress
	// IndexProgress counts the index files read by Run.
	IndexProgress *progress.Counter
}

const pathLockBuckets = 1024

// Restorer restores the entries of a manifest to a directory.
type Restorer struct {
	m       *backup.Manifest
	idx     resolver.Index
	fetcher Fetcher
	opts    Options
	locks   *pathLocks
}

// NewRestorer returns a Restorer for the entries of m. Blocks are resolved
// with idx and read from fetcher.
func NewRestorer(m *backup.Manifest, idx resolver.Index, fetcher Fetcher, opts Options) *Restorer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	return &Restorer{
		m:       m,
		idx:     idx,
		fetcher: fetcher,
		opts:    opts,
		locks:   newPathLocks(pathLockBuckets),
	}
}

// task is one item to restore. entry is nil for directories which are not
// listed in the manifest but are needed as parents.
type task struct {
	seq    int
	entry  *backup.FileEntry
	rel    string
	target string
	blocks resolver.BlockSet
	first  backup.VolumeID
}

func newTask(seq int, e *backup.FileEntry, dst string, keepBackslashes bool) (*task, error) {
	rel, err := e.RelPath(keepBackslashes)
	if err != nil {
		return nil, err
	}
	target, err := fs.Join(dst, rel)
	if err != nil {
		return nil, err
	}
	return &task{seq: seq, entry: e, rel: rel, target: target}, nil
}

func (t *task) name() string {
	if t.entry != nil {
		return t.entry.Path
	}
	return t.rel
}

type restorePlan struct {
	dirs  []*task
	files []*task
}

// plan computes the destination of every entry and resolves the blocks of
// all files. Entries which cannot be placed or resolved are recorded as
// failures. A malformed reference aborts the run.
func (res *Restorer) plan(dst string, col *collector) (*restorePlan, error) {
	p := &restorePlan{}
	dirs := make(map[string]*task)

	addDir := func(t *task) {
		if old, ok := dirs[t.rel]; ok {
			if old.entry == nil {
				old.entry = t.entry
				old.seq = t.seq
			}
			return
		}
		dirs[t.rel] = t
		p.dirs = append(p.dirs, t)
	}

	for seq, e := range res.m.Entries {
		if e.Kind == backup.KindFile {
			res.opts.Progress.AddEntry(uint64(e.Size))
		} else {
			res.opts.Progress.AddEntry(0)
		}

		t, err := newTask(seq, e, dst, res.opts.KeepBackslashes)
		if err == nil && e.Kind == backup.KindFile {
			t.blocks, err = resolver.Resolve(e.Ref, res.idx)
			var fe *backup.FormatError
			if errors.As(err, &fe) {
				col.fail(seq, e.Path, err)
				return nil, errors.Wrapf(err, "resolve %v", e.Path)
			}
		}
		if err != nil {
			debug.Log("%v: %v", e.Path, err)
			col.fail(seq, e.Path, err)
			res.opts.Progress.AddFailed(e.Path, uint64(e.Size), err)
			continue
		}

		if e.IsDir() {
			addDir(t)
		} else {
			if len(t.blocks) > 0 {
				loc, _ := res.idx.Lookup(t.blocks[0].ID)
				t.first = loc.Volume
			}
			p.files = append(p.files, t)
		}

		// parents which are not listed in the manifest
		for dir := path.Dir(t.rel); dir != "."; dir = path.Dir(dir) {
			if _, ok := dirs[dir]; ok {
				break
			}
			target, err := fs.Join(dst, dir)
			if err != nil {
				break
			}
			addDir(&task{seq: -1, rel: dir, target: target})
		}
	}

	sort.SliceStable(p.dirs, func(i, j int) bool {
		di, dj := backup.Depth(p.dirs[i].rel), backup.Depth(p.dirs[j].rel)
		if di != dj {
			return di < dj
		}
		return p.dirs[i].rel < p.dirs[j].rel
	})

	sort.SliceStable(p.files, func(i, j int) bool {
		if p.files[i].first != p.files[j].first {
			return p.files[i].first < p.files[j].first
		}
		return p.files[i].rel < p.files[j].rel
	})

	debug.Log("planned %d directories and %d files", len(p.dirs), len(p.files))
	return p, nil
}

// Restore restores all entries below dst. The returned report lists every
// item which could not be restored. A non-nil error means the run was
// stopped early, the report is still valid in that case.
func (res *Restorer) Restore(ctx context.Context, dst string) (*Report, error) {
	col := newCollector()

	p, err := res.plan(dst, col)
	if err != nil {
		for seq, e := range res.m.Entries {
			if _, ok := col.failures.Load(seq); !ok {
				col.fail(seq, e.Path, errors.Wrap(backup.ErrCancelled, "restore aborted"))
			}
		}
		rep := col.report()
		rep.Cancelled = true
		return rep, err
	}

	if !res.opts.DryRun {
		if err := fs.MkdirAll(dst, 0700); err != nil {
			return nil, errors.Wrap(err, "create destination")
		}
	}

	for _, t := range p.dirs {
		res.restoreDir(t, col)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	dispatched := res.restoreFiles(ctx, cancel, p.files, col)
	for _, t := range p.files[dispatched:] {
		col.fail(t.seq, t.name(), errors.Wrap(backup.ErrCancelled, "not started"))
		res.opts.Progress.AddFailed(t.name(), uint64(t.entry.Size), backup.ErrCancelled)
	}

	if !res.opts.DryRun {
		for i := len(p.dirs) - 1; i >= 0; i-- {
			if err := res.applyDirMetadata(p.dirs[i]); err != nil {
				col.warnf("%v: %v", p.dirs[i].name(), err)
			}
		}
	}

	rep := col.report()
	if cause := context.Cause(ctx); cause != nil {
		rep.Cancelled = true
		debug.Log("restore stopped: %v", cause)
		return rep, cause
	}
	return rep, nil
}

// restoreFiles runs the file tasks on the worker pool and returns the number
// of tasks which were handed to a worker.
func (res *Restorer) restoreFiles(ctx context.Context, cancel context.CancelCauseFunc, files []*task, col *collector) int {
	var wg errgroup.Group
	ch := make(chan *task)
	dispatched := 0

	wg.Go(func() error {
		defer close(ch)
		for _, t := range files {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case ch <- t:
				dispatched++
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < res.opts.Concurrency; i++ {
		wg.Go(func() error {
			for t := range ch {
				err := res.restoreTask(ctx, t, col)
				if err != nil && fs.IsDiskFull(err) {
					cancel(errors.Wrap(err, "destination is full"))
				}
			}
			return nil
		})
	}

	_ = wg.Wait()
	return dispatched
}

func (res *Restorer) restoreTask(ctx context.Context, t *task, col *collector) error {
	var err error
	var n int64
	switch t.entry.Kind {
	case backup.KindSymlink:
		err = res.restoreSymlink(ctx, t)
	default:
		n, err = res.restoreFile(ctx, t)
	}

	if err != nil {
		if ctx.Err() != nil && backup.KindOf(err) != backup.KindCancelled {
			// the failure is a consequence of the interruption
			err = errors.Wrap(backup.ErrCancelled, err.Error())
		}
		debug.Log("%v: %v", t.entry.Path, err)
		col.fail(t.seq, t.entry.Path, err)
		res.opts.Progress.AddFailed(t.entry.Path, uint64(t.entry.Size), err)
		return err
	}

	col.succeeded.Inc()
	col.bytes.Add(n)
	return nil
}

func (res *Restorer) restoreDir(t *task, col *collector) {
	if !res.opts.DryRun {
		if err := fs.MkdirAll(t.target, 0700); err != nil {
			debug.Log("mkdir %v: %v", t.target, err)
			if t.entry != nil {
				col.fail(t.seq, t.entry.Path, err)
				res.opts.Progress.AddFailed(t.entry.Path, 0, err)
			} else {
				col.warnf("%v: %v", t.rel, err)
			}
			return
		}
	}

	col.dirs.Inc()
	if t.entry != nil {
		res.opts.Progress.AddProgress(t.entry.Path, restoreui.ActionFolderCreated, 0, 0)
	}
}

func (res *Restorer) applyDirMetadata(t *task) error {
	if _, err := fs.Lstat(t.target); err != nil {
		// creating the directory failed, this was already reported
		return nil
	}

	var mode = defaultDirMode
	if t.entry != nil && t.entry.HasMode {
		mode = t.entry.Mode
	}
	if err := fs.Chmod(t.target, mode); err != nil {
		return errors.Wrap(err, "chmod")
	}

	if t.entry != nil && !t.entry.ModTime.IsZero() {
		if err := fs.Chtimes(t.target, t.entry.ModTime, false); err != nil {
			return errors.Wrap(err, "chtimes")
		}
	}
	return nil
}
