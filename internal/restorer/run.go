package restorer

import (
	"context"

	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/index"
	"github.com/dupres/dupres/internal/limiter"
	"github.com/dupres/dupres/internal/manifest"
	"github.com/dupres/dupres/internal/volume"
)

// Sources names the containers of the backup version to restore.
type Sources struct {
	// Manifest is the path of the dlist container.
	Manifest string
	// Indexes are the paths of all dindex containers.
	Indexes []string
	// Volumes are the paths of the dblock containers, used to index volumes
	// whose dindex container is missing.
	Volumes []string
	// Locator finds the dblock container of a volume.
	Locator volume.Locator
}

// Run restores the version described by src to dst. The returned error is
// non-nil if the sources could not be read or the run was stopped early, in
// the latter case the report is returned as well.
func Run(ctx context.Context, src Sources, dst string, opts Options) (*Report, error) {
	m, err := manifest.Read(src.Manifest)
	if err != nil {
		return nil, err
	}
	debug.Log("manifest %v: %d entries", m.Version, len(m.Entries))

	opts.IndexProgress.SetMax(uint64(len(src.Indexes)))
	idx, err := index.Build(ctx, src.Indexes, index.BuildOptions{
		Progress: opts.IndexProgress,
		Volumes:  src.Volumes,
		Encoding: opts.Encoding,
	})
	opts.IndexProgress.Done()
	if err != nil {
		return nil, err
	}

	var lim limiter.Limiter
	if opts.ReadLimitKiB > 0 {
		lim = limiter.NewStaticLimiter(limiter.Limits{DownloadKb: opts.ReadLimitKiB})
	}

	cache := volume.New(idx, src.Locator, volume.Options{
		MaxOpenVolumes:   opts.MaxOpenVolumes,
		Encoding:         opts.Encoding,
		Limiter:          lim,
		PayloadCacheSize: opts.PayloadCacheSize,
	})

	rep, err := NewRestorer(m, idx, cache, opts).Restore(ctx, dst)
	if cerr := cache.Close(); cerr != nil {
		debug.Log("closing volumes: %v", cerr)
	}
	if rep != nil {
		rep.Warnings = append(append([]string(nil), idx.Warnings()...), rep.Warnings...)
		rep.Volumes = cache.Stats()
	}
	return rep, err
}
