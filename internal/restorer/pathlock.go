package restorer

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// pathLocks serializes writes to the same destination path. Two manifest
// entries can map to the same path after separator normalization.
type pathLocks struct {
	buckets []sync.Mutex
}

func newPathLocks(count int) *pathLocks {
	return &pathLocks{buckets: make([]sync.Mutex, count)}
}

// lock locks the bucket of path and returns the function to unlock it.
func (l *pathLocks) lock(path string) func() {
	m := &l.buckets[xxhash.Sum64String(path)%uint64(len(l.buckets))]
	m.Lock()
	return m.Unlock
}
