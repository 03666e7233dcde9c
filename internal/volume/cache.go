// Package volume extracts block payloads from the content volumes of a
// backup set.
package volume

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dupres/dupres/internal/archive"
	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/bloblru"
	"github.com/dupres/dupres/internal/debug"
	"github.com/dupres/dupres/internal/index"
	"github.com/dupres/dupres/internal/limiter"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Locator maps a volume to the path of its file.
type Locator interface {
	Locate(id backup.VolumeID) (string, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(id backup.VolumeID) (string, error)

// Locate calls fn(id).
func (fn LocatorFunc) Locate(id backup.VolumeID) (string, error) { return fn(id) }

// BlockIndex is the part of the block index needed to find payloads.
type BlockIndex interface {
	Lookup(id backup.ID) (index.Location, bool)
}

// Options configure a Cache.
type Options struct {
	// MaxOpenVolumes bounds the number of volumes kept open at the same time.
	MaxOpenVolumes int
	// Encoding forces the entry name codec, nil detects it per volume.
	Encoding archive.NameCodec
	// Limiter throttles reading volume entries, nil disables throttling.
	Limiter limiter.Limiter
	// PayloadCacheSize is the size in bytes of the cache of verified
	// payloads, zero selects a default. The cache is shared by all volumes,
	// payloads stay cached after their volume was evicted until the size
	// bound pushes them out.
	PayloadCacheSize int
	// OpenRetries is the number of retries when a volume cannot be opened
	// because of a transient error.
	OpenRetries int
}

const (
	DefaultMaxOpenVolumes   = 8
	DefaultPayloadCacheSize = 32 << 20
)

// Stats are counters of a Cache.
type Stats struct {
	VolumesOpened  int64
	VolumesEvicted int64
	BlocksRead     int64
	BytesRead      int64
	CacheHits      int64
}

// Cache opens content volumes on demand and returns verified payloads. It
// keeps at most MaxOpenVolumes volumes open. Fetches from different volumes
// run in parallel, fetches from the same volume are serialized.
type Cache struct {
	idx     BlockIndex
	locator Locator
	opts    Options

	payloads *bloblru.Cache

	mu      sync.Mutex
	handles *simplelru.LRU[backup.VolumeID, *handle]
	evicted []*handle

	opened, evictions, blocks, bytes, fetches, misses atomic.Int64
}

// New returns a Cache reading the volumes listed in idx.
func New(idx BlockIndex, locator Locator, opts Options) *Cache {
	if opts.MaxOpenVolumes <= 0 {
		opts.MaxOpenVolumes = DefaultMaxOpenVolumes
	}
	if opts.PayloadCacheSize <= 0 {
		opts.PayloadCacheSize = DefaultPayloadCacheSize
	}
	if opts.OpenRetries <= 0 {
		opts.OpenRetries = 5
	}

	c := &Cache{
		idx:      idx,
		locator:  locator,
		opts:     opts,
		payloads: bloblru.New(opts.PayloadCacheSize),
	}

	lru, err := simplelru.NewLRU[backup.VolumeID, *handle](opts.MaxOpenVolumes, c.onEvict)
	if err != nil {
		panic(err)
	}
	c.handles = lru

	return c
}

// onEvict is called by the LRU with c.mu held. The handle is closed by
// closeEvicted after the lock was released.
func (c *Cache) onEvict(_ backup.VolumeID, h *handle) {
	c.evicted = append(c.evicted, h)
}

func (c *Cache) closeEvicted(list []*handle) {
	for _, h := range list {
		debug.Log("evicting volume %v", h.id)
		if h.close() {
			c.evictions.Add(1)
		}
	}
}

// Fetch returns the verified payload of block id.
func (c *Cache) Fetch(ctx context.Context, id backup.ID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc, ok := c.idx.Lookup(id)
	if !ok {
		return nil, &backup.MissingBlockError{ID: id}
	}

	c.fetches.Add(1)
	return c.payloads.GetOrCompute(id, func() ([]byte, error) {
		c.misses.Add(1)
		return c.extract(ctx, id, loc)
	})
}

func (c *Cache) extract(ctx context.Context, id backup.ID, loc index.Location) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		h := c.acquire(loc.Volume)
		buf, err := h.extract(ctx, c, id, loc.Length)
		if err == errClosed {
			// evicted while waiting for the handle, retry with a new one
			continue
		}
		if err != nil {
			return nil, err
		}

		c.blocks.Add(1)
		c.bytes.Add(int64(len(buf)))
		return buf, nil
	}
}

// acquire returns the handle for volume id, creating it if needed.
func (c *Cache) acquire(id backup.VolumeID) *handle {
	c.mu.Lock()
	h, ok := c.handles.Get(id)
	if !ok {
		h = &handle{id: id}
		c.handles.Add(id, h)
	}
	evicted := c.evicted
	c.evicted = nil
	c.mu.Unlock()

	c.closeEvicted(evicted)
	return h
}

// drop removes h from the table, a later fetch creates a new handle. The
// caller holds h.mu and has marked h as closed.
func (c *Cache) drop(h *handle) {
	c.mu.Lock()
	if cur, ok := c.handles.Peek(h.id); ok && cur == h {
		// Remove calls onEvict, which queues h itself
		c.handles.Remove(h.id)
	}
	var evicted []*handle
	for _, e := range c.evicted {
		if e != h {
			evicted = append(evicted, e)
		}
	}
	c.evicted = nil
	c.mu.Unlock()

	c.closeEvicted(evicted)
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		VolumesOpened:  c.opened.Load(),
		VolumesEvicted: c.evictions.Load(),
		BlocksRead:     c.blocks.Load(),
		BytesRead:      c.bytes.Load(),
		CacheHits:      c.fetches.Load() - c.misses.Load(),
	}
}

// Close closes all open volumes.
func (c *Cache) Close() error {
	c.mu.Lock()
	var list []*handle
	for _, id := range c.handles.Keys() {
		if h, ok := c.handles.Peek(id); ok {
			list = append(list, h)
		}
	}
	c.handles.Purge()
	c.evicted = nil
	c.mu.Unlock()

	var firstErr error
	for _, h := range list {
		if err := h.closeErr(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
