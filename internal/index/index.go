// Package index builds the global block index of a backup set from its
// dindex containers.
package index

import (
	"context"
	"runtime"
	"sort"
	"strings"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/errors"
	"github.com/dupres/dupres/internal/ui/progress"

	"golang.org/x/sync/errgroup"
)

// Location describes where the payload of a block is stored.
type Location struct {
	Volume backup.VolumeID
	Length int64
}

// VolumeInfo holds the properties an index file records for a volume.
type VolumeInfo struct {
	ID   backup.VolumeID
	Hash backup.ID
	Size int64
}

// Index maps block hashes to their location and blocklist hashes to their
// payload. An Index is immutable once built and safe for concurrent reads.
type Index struct {
	blocks     map[backup.ID]Location
	blocklists map[backup.ID]backup.IDs
	volumes    map[backup.VolumeID]VolumeInfo
	warnings   []string
}

// Lookup returns the location of the block id.
func (idx *Index) Lookup(id backup.ID) (Location, bool) {
	loc, ok := idx.blocks[id]
	return loc, ok
}

// VolumeOf returns the volume holding block id.
func (idx *Index) VolumeOf(id backup.ID) (backup.VolumeID, bool) {
	loc, ok := idx.blocks[id]
	return loc.Volume, ok
}

// Blocklist returns the block hashes stored in the blocklist id. The
// returned slice must not be modified.
func (idx *Index) Blocklist(id backup.ID) (backup.IDs, bool) {
	ids, ok := idx.blocklists[id]
	return ids, ok
}

// IsBlocklist returns true if id is the hash of a known blocklist.
func (idx *Index) IsBlocklist(id backup.ID) bool {
	_, ok := idx.blocklists[id]
	return ok
}

// Volumes returns the known volumes, sorted by name.
func (idx *Index) Volumes() []VolumeInfo {
	list := make([]VolumeInfo, 0, len(idx.volumes))
	for _, v := range idx.volumes {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Len returns the number of indexed blocks.
func (idx *Index) Len() int { return len(idx.blocks) }

// Warnings returns the conflicts found while merging the sources.
func (idx *Index) Warnings() []string { return idx.warnings }

// BuildOptions configure Build.
type BuildOptions struct {
	// Parallelism is the number of sources parsed at the same time, zero
	// selects GOMAXPROCS.
	Parallelism int
	// Progress is advanced by one for every parsed source.
	Progress *progress.Counter
	// Volumes are the paths of the content volumes. A volume which no
	// source describes is indexed from its own entry names.
	Volumes []string
	// Encoding forces the entry name codec used for such volumes, nil
	// detects it per volume.
	Encoding archive.NameCodec
}

// partial is the content of a single source.
type partial struct {
	source     string
	volumes    []VolumeInfo
	blocks     []blockEntry
	blocklists []listEntry
}

type blockEntry struct {
	id  backup.ID
	loc Location
}

type listEntry struct {
	id  backup.ID
	ids backup.IDs
}

// Build reads all index containers in sources and merges them. The sources
// are merged in sorted order, for hashes listed more than once the first
// entry is kept. Content volumes in opts.Volumes that no source describes
// are listed last.
func Build(ctx context.Context, sources []string, opts BuildOptions) (*Index, error) {
	sorted := append([]string(nil), sources...)
	sort.Strings(sorted)

	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	poolSize := workers
	if workers > len(sorted) {
		workers = len(sorted)
	}

	debug.Log("building index from %d sources with %d workers", len(sorted), workers)

	results := make([]*partial, len(sorted))
	wg, wgCtx := errgroup.WithContext(ctx)

	ch := make(chan int)
	wg.Go(func() error {
		defer close(ch)
		for i := range sorted {
			select {
			case ch <- i:
			case <-wgCtx.Done():
				return wgCtx.Err()
			}
		}
		return nil
	})

	for i := 0; i < workers; i++ {
		wg.Go(func() error {
			for i := range ch {
				p, err := parse(wgCtx, sorted[i])
				if err != nil {
					return err
				}
				results[i] = p
				opts.Progress.Add(1)
			}
			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		return nil, err
	}

	idx := merge(results)
	if err := idx.addUncovered(ctx, opts.Volumes, opts, poolSize); err != nil {
		return nil, err
	}
	if err := idx.validate(); err != nil {
		return nil, err
	}

	debug.Log("index has %d blocks, %d blocklists, %d volumes, %d warnings",
		len(idx.blocks), len(idx.blocklists), len(idx.volumes), len(idx.warnings))
	return idx, nil
}

func merge(results []*partial) *Index {
	idx := &Index{
		blocks:     make(map[backup.ID]Location),
		blocklists: make(map[backup.ID]backup.IDs),
		volumes:    make(map[backup.VolumeID]VolumeInfo),
	}
	for _, p := range results {
		idx.mergePartial(p)
	}
	return idx
}

// mergePartial adds the content of p, entries already present are kept.
func (idx *Index) mergePartial(p *partial) {
	for _, v := range p.volumes {
		if _, ok := idx.volumes[v.ID]; !ok {
			idx.volumes[v.ID] = v
		}
	}

	for _, b := range p.blocks {
		old, ok := idx.blocks[b.id]
		if !ok {
			idx.blocks[b.id] = b.loc
			continue
		}
		if old != b.loc {
			idx.warnf("block %v listed in %v with volume %v length %d, keeping volume %v length %d",
				b.id.Str(), p.source, b.loc.Volume, b.loc.Length, old.Volume, old.Length)
		}
	}

	for _, l := range p.blocklists {
		old, ok := idx.blocklists[l.id]
		if !ok {
			idx.blocklists[l.id] = l.ids
			continue
		}
		if !equalIDs(old, l.ids) {
			idx.warnf("blocklist %v in %v differs from the first copy, keeping the first",
				l.id.Str(), p.source)
		}
	}
}

func (idx *Index) warnf(format string, args ...interface{}) {
	msg := errors.Errorf(format, args...).Error()
	debug.Log("%s", msg)
	idx.warnings = append(idx.warnings, msg)
}

// validate rejects blocklists referencing other blocklists.
func (idx *Index) validate() error {
	for id, ids := range idx.blocklists {
		for _, sub := range ids {
			if idx.IsBlocklist(sub) {
				return backup.NewFormatError("index", "blocklist %v references blocklist %v, nested blocklists are not supported", id, sub)
			}
		}
	}
	return nil
}

func equalIDs(a, b backup.IDs) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const (
	volumePrefix = "vol/"
	listPrefix   = "list/"
)

type volumeDoc struct {
	Blocks []struct {
		Hash string `json:"hash"`
		Size int64  `json:"size"`
	} `json:"blocks"`
	VolumeHash string `json:"volumehash"`
	VolumeSize int64  `json:"volumesize"`
}

func parse(ctx context.Context, source string) (*partial, error) {
	a, err := archive.Open(source)
	if err != nil {
		return nil, &backup.IndexError{Source: source, Err: err}
	}
	defer func() {
		_ = a.Close()
	}()

	p := &partial{source: source}
	for _, f := range a.Files() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case strings.HasPrefix(f.Name, volumePrefix):
			var doc volumeDoc
			if err := archive.DecodeJSON(f, &doc); err != nil {
				return nil, &backup.IndexError{Source: source, Err: err}
			}
			if err := p.addVolume(strings.TrimPrefix(f.Name, volumePrefix), &doc); err != nil {
				return nil, &backup.IndexError{Source: source, Err: err}
			}

		case strings.HasPrefix(f.Name, listPrefix):
			id, err := backup.ParseBase64(strings.TrimPrefix(f.Name, listPrefix))
			if err != nil {
				return nil, &backup.IndexError{Source: source, Err: errors.Wrapf(err, "entry %v", f.Name)}
			}
			buf, err := archive.ReadFile(f, nil)
			if err != nil {
				return nil, &backup.IndexError{Source: source, Err: err}
			}
			ids, err := splitBlocklist(buf)
			if err != nil {
				return nil, &backup.IndexError{Source: source, Err: errors.Wrapf(err, "blocklist %v", id.Str())}
			}
			p.blocklists = append(p.blocklists, listEntry{id: id, ids: ids})
		}
	}

	debug.Log("%v: %d volumes, %d blocks, %d blocklists", source, len(p.volumes), len(p.blocks), len(p.blocklists))
	return p, nil
}

func (p *partial) addVolume(name string, doc *volumeDoc) error {
	info := VolumeInfo{ID: backup.NewVolumeID(name), Size: doc.VolumeSize}
	if doc.VolumeHash != "" {
		h, err := backup.ParseBase64(doc.VolumeHash)
		if err != nil {
			return errors.Wrapf(err, "volume hash of %v", name)
		}
		info.Hash = h
	}
	p.volumes = append(p.volumes, info)

	for i, b := range doc.Blocks {
		id, err := backup.ParseBase64(b.Hash)
		if err != nil {
			return errors.Wrapf(err, "block %d of volume %v", i, name)
		}
		if b.Size < 0 {
			return errors.Errorf("block %d of volume %v has negative size", i, name)
		}
		p.blocks = append(p.blocks, blockEntry{id: id, loc: Location{Volume: info.ID, Length: b.Size}})
	}
	return nil
}

// splitBlocklist cuts a blocklist payload into block hashes.
func splitBlocklist(buf []byte) (backup.IDs, error) {
	if len(buf)%len(backup.ID{}) != 0 {
		return nil, errors.Errorf("payload length %d is not a multiple of %d", len(buf), len(backup.ID{}))
	}

	ids := make(backup.IDs, 0, len(buf)/len(backup.ID{}))
	for len(buf) > 0 {
		var id backup.ID
		copy(id[:], buf)
		ids = append(ids, id)
		buf = buf[len(id):]
	}
	return ids, nil
}
