// Package restore reports the progress of a restore run.
package restore

import (
	"sync"
	"time"

	"github.com/dupres/dupres/internal/ui/progress"
)

// State counts the entries and bytes of a restore run.
type State struct {
	EntriesDone   uint64
	EntriesTotal  uint64
	EntriesFailed uint64
	BytesDone     uint64
	BytesTotal    uint64
	BytesFailed   uint64
}

// Action is what happened to a completed entry.
type Action string

const (
	ActionFolderCreated  Action = "folder created"
	ActionFileRestored   Action = "file restored"
	ActionFileVerified   Action = "file verified"
	ActionSymlinkCreated Action = "symlink created"
)

// ProgressPrinter renders the progress of a restore run.
type ProgressPrinter interface {
	Update(s State, elapsed time.Duration)
	Error(item string, err error)
	CompleteItem(action Action, item string, size uint64)
	Finish(s State, elapsed time.Duration)
}

type term interface {
	Print(line string)
	Error(line string)
	SetStatus(lines []string)
}

// Progress collects the events of a restore run and hands them to a
// ProgressPrinter. A nil Progress ignores all events.
type Progress struct {
	updater *progress.Updater
	printer ProgressPrinter

	mu       sync.Mutex
	s        State
	inFlight map[string]uint64
}

// NewProgress returns a Progress which prints a status every interval.
func NewProgress(printer ProgressPrinter, interval time.Duration) *Progress {
	p := &Progress{
		printer:  printer,
		inFlight: make(map[string]uint64),
	}
	p.updater = progress.NewUpdater(interval, p.update)
	return p
}

func (p *Progress) update(elapsed time.Duration, final bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if final {
		p.printer.Finish(p.s, elapsed)
		return
	}
	p.printer.Update(p.s, elapsed)
}

// AddEntry announces an entry of the manifest, size is zero for folders and
// symlinks.
func (p *Progress) AddEntry(size uint64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.s.EntriesTotal++
	p.s.BytesTotal += size
	p.mu.Unlock()
}

// AddProgress records n more bytes of item. The item is complete once size
// bytes were recorded, entries without content complete on the first call.
func (p *Progress) AddProgress(item string, action Action, n uint64, size uint64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	done := p.inFlight[item] + n
	p.s.BytesDone += n
	if done < size {
		p.inFlight[item] = done
		return
	}

	delete(p.inFlight, item)
	p.s.EntriesDone++
	p.printer.CompleteItem(action, item, size)
}

// AddFailed records that item could not be restored. Bytes recorded for it
// so far count as failed.
func (p *Progress) AddFailed(item string, size uint64, err error) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.s.BytesDone -= p.inFlight[item]
	delete(p.inFlight, item)
	p.s.EntriesFailed++
	p.s.BytesFailed += size
	p.printer.Error(item, err)
}

// Finish prints the final report and stops the periodic updates.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	p.updater.Done()
}
