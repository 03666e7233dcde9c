package index

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"

	"golang.org/x/sync/errgroup"
)

// addUncovered lists the entries of every content volume in paths which no
// index source describes. Blocklists are never taken from volumes.
func (idx *Index) addUncovered(ctx context.Context, paths []string, opts BuildOptions, workers int) error {
	var todo []string
	for _, p := range paths {
		if _, ok := idx.volumes[backup.NewVolumeID(filepath.Base(p))]; !ok {
			todo = append(todo, p)
		}
	}
	if len(todo) == 0 {
		return nil
	}
	sort.Strings(todo)
	debug.Log("%d volumes are not covered by an index file", len(todo))

	type result struct {
		p   *partial
		err error
	}
	results := make([]result, len(todo))

	wg, wgCtx := errgroup.WithContext(ctx)
	wg.SetLimit(workers)
	for i, p := range todo {
		wg.Go(func() error {
			if wgCtx.Err() != nil {
				return wgCtx.Err()
			}
			part, err := scanVolume(p, opts.Encoding)
			results[i] = result{part, err}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return err
	}

	for i, r := range results {
		if r.err != nil {
			idx.warnf("volume %v has no index data and cannot be listed: %v", filepath.Base(todo[i]), r.err)
			continue
		}
		idx.warnf("volume %v has no index data, using its %d entries", filepath.Base(todo[i]), len(r.p.blocks))
		idx.mergePartial(r.p)
	}
	return nil
}

// scanVolume derives the block locations of a content volume from its
// entry names and uncompressed sizes.
func scanVolume(p string, codec archive.NameCodec) (*partial, error) {
	a, err := archive.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = a.Close()
	}()

	if codec == nil {
		names := make([]string, 0, len(a.Files()))
		for _, f := range a.Files() {
			names = append(names, f.Name)
		}
		codec, err = archive.DetectCodec(names)
		if err != nil {
			return nil, err
		}
	}

	info := VolumeInfo{ID: backup.NewVolumeID(filepath.Base(p))}
	part := &partial{source: p, volumes: []VolumeInfo{info}}
	for _, f := range a.Files() {
		id, err := codec.Decode(f.Name)
		if err != nil {
			// the manifest entry and anything else which is not a block
			continue
		}
		part.blocks = append(part.blocks, blockEntry{id: id, loc: Location{Volume: info.ID, Length: int64(f.UncompressedSize64)}})
	}

	debug.Log("%v: %d blocks from entry names (%v)", p, len(part.blocks), codec.Name())
	return part, nil
}
