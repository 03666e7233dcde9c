// Package bloblru caches verified block payloads.
package bloblru

import (
	"sync"

	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/debug"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Crude estimate of the overhead per block: a SHA-256, a linked list node
// and some pointers.
const overhead = len(backup.ID{}) + 64

// A Cache is a fixed-size LRU cache of block contents.
// It is safe for concurrent access.
type Cache struct {
	mu sync.Mutex
	c  *simplelru.LRU[backup.ID, []byte]

	free, size int // Current and max capacity, in bytes.
	inProgress map[backup.ID]chan struct{}
}

// New constructs a cache that stores at most size bytes worth of blocks.
func New(size int) *Cache {
	c := &Cache{
		free:       size,
		size:       size,
		inProgress: make(map[backup.ID]chan struct{}),
	}

	// The actual maximum number of entries will be smaller than
	// size/overhead, Add evicts entries to maintain the size bound.
	maxEntries := size / overhead
	if maxEntries < 1 {
		maxEntries = 1
	}
	lru, err := simplelru.NewLRU[backup.ID, []byte](maxEntries, c.evict)
	if err != nil {
		panic(err) // Can only be maxEntries <= 0.
	}
	c.c = lru

	return c
}

// Add adds key id with value blob to c.
func (c *Cache) Add(id backup.ID, blob []byte) {
	size := cap(blob) + overhead
	if size > c.size {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.c.Contains(id) {
		return
	}

	for size > c.free {
		c.c.RemoveOldest()
	}

	c.c.Add(id, blob)
	c.free -= size
}

// Get returns the cached payload of id.
func (c *Cache) Get(id backup.ID) ([]byte, bool) {
	c.mu.Lock()
	blob, ok := c.c.Get(id)
	c.mu.Unlock()

	return blob, ok
}

// GetOrCompute returns the payload of id, calling compute if it is not
// cached. Concurrent calls for the same id wait for a single computation.
// Failed computations are not cached.
func (c *Cache) GetOrCompute(id backup.ID, compute func() ([]byte, error)) ([]byte, error) {
	blob, ok := c.Get(id)
	if ok {
		return blob, nil
	}

	finish := make(chan struct{})
	c.mu.Lock()
	waitForResult, isComputing := c.inProgress[id]
	if !isComputing {
		c.inProgress[id] = finish
	}
	c.mu.Unlock()

	if isComputing {
		<-waitForResult
	} else {
		defer func() {
			c.mu.Lock()
			delete(c.inProgress, id)
			c.mu.Unlock()
			close(finish)
		}()
	}

	// The value may have been added between the first Get and registering
	// in inProgress, check again before computing it.
	blob, ok = c.Get(id)
	if ok {
		return blob, nil
	}

	blob, err := compute()
	if err == nil {
		c.Add(id, blob)
	}

	return blob, err
}

func (c *Cache) evict(key backup.ID, blob []byte) {
	debug.Log("evict %v, %d bytes", key.Str(), cap(blob))
	c.free += cap(blob) + overhead
}
