package restorer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dupres/dupres/internal/backup"
	"github.com/dupres/dupres/internal/volume"

	"github.com/puzpuzpuz/xsync/v3"
)

// Failure describes an item which could not be restored.
type Failure struct {
	Path    string      `json:"path"`
	Kind    backup.Kind `json:"kind"`
	Message string      `json:"error"`
	Err     error       `json:"-"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%v: %v", f.Path, f.Message)
}

// Report is the outcome of a restore run.
type Report struct {
	// Succeeded counts restored (or verified) files and symlinks.
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`
	DirsCreated  int          `json:"dirs_created"`
	BytesWritten int64        `json:"bytes_written"`
	Failures     []Failure    `json:"failures,omitempty"`
	Warnings     []string     `json:"warnings,omitempty"`
	Cancelled    bool         `json:"cancelled"`
	Volumes      volume.Stats `json:"volumes"`
}

// OK returns true if every item was restored.
func (r *Report) OK() bool {
	return r.Failed == 0 && !r.Cancelled
}

// collector gathers results from concurrent workers.
type collector struct {
	failures  *xsync.MapOf[int, Failure]
	succeeded *xsync.Counter
	dirs      *xsync.Counter
	bytes     *xsync.Counter

	mu       sync.Mutex
	warnings []string
}

func newCollector() *collector {
	return &collector{
		failures:  xsync.NewMapOf[int, Failure](),
		succeeded: xsync.NewCounter(),
		dirs:      xsync.NewCounter(),
		bytes:     xsync.NewCounter(),
	}
}

// fail records err for the task with sequence number seq.
func (c *collector) fail(seq int, path string, err error) {
	c.failures.Store(seq, Failure{
		Path:    path,
		Kind:    backup.KindOf(err),
		Message: err.Error(),
		Err:     err,
	})
}

func (c *collector) warnf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *collector) report() *Report {
	type seqFailure struct {
		seq int
		f   Failure
	}
	var list []seqFailure
	c.failures.Range(func(seq int, f Failure) bool {
		list = append(list, seqFailure{seq, f})
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		if list[i].f.Path != list[j].f.Path {
			return list[i].f.Path < list[j].f.Path
		}
		return list[i].seq < list[j].seq
	})

	rep := &Report{
		Succeeded:    int(c.succeeded.Value()),
		Failed:       len(list),
		DirsCreated:  int(c.dirs.Value()),
		BytesWritten: c.bytes.Value(),
	}
	for _, sf := range list {
		rep.Failures = append(rep.Failures, sf.f)
	}

	c.mu.Lock()
	rep.Warnings = append(rep.Warnings, c.warnings...)
	c.mu.Unlock()

	return rep
}
