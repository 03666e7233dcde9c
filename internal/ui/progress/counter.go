// Package progress runs periodic progress reports.
package progress

import (
	"sync/atomic"
	"time"
)

// A Func receives the state of a Counter. final is true for the last call,
// made from Counter.Done.
type Func func(value uint64, total uint64, runtime time.Duration, final bool)

// Counter counts finished items (index files read, volumes checked) and
// reports the count periodically. All methods may be called concurrently
// and on a nil Counter.
type Counter struct {
	*Updater
	value atomic.Uint64
	total atomic.Uint64
}

// NewCounter returns a running Counter which expects total items.
func NewCounter(interval time.Duration, total uint64, report Func) *Counter {
	c := &Counter{}
	c.total.Store(total)
	c.Updater = NewUpdater(interval, func(runtime time.Duration, final bool) {
		report(c.value.Load(), c.total.Load(), runtime, final)
	})
	return c
}

// Add adds v finished items.
func (c *Counter) Add(v uint64) {
	if c == nil {
		return
	}
	c.value.Add(v)
}

// SetMax changes the number of expected items.
func (c *Counter) SetMax(total uint64) {
	if c == nil {
		return
	}
	c.total.Store(total)
}

// Get returns the number of finished and expected items.
func (c *Counter) Get() (value, total uint64) {
	if c == nil {
		return 0, 0
	}
	return c.value.Load(), c.total.Load()
}

// Done sends the final report and stops the Counter.
func (c *Counter) Done() {
	if c == nil {
		return
	}
	c.Updater.Done()
}
