package restore

import (
	"testing"
	"time"

	"github.com/dupres/dupres/internal/errors"
	rtest "github.com/dupres/dupres/internal/test"
)

type completedItem struct {
	action Action
	item   string
	size   uint64
}

type recordingPrinter struct {
	updates  []State
	final    *State
	items    []completedItem
	failures []string
}

func (p *recordingPrinter) Update(s State, _ time.Duration) { p.updates = append(p.updates, s) }
func (p *recordingPrinter) Finish(s State, _ time.Duration) { p.final = &s }
func (p *recordingPrinter) Error(item string, err error) {
	p.failures = append(p.failures, item+": "+err.Error())
}
func (p *recordingPrinter) CompleteItem(action Action, item string, size uint64) {
	p.items = append(p.items, completedItem{action, item, size})
}

// run feeds events to a Progress without periodic updates and returns the
// final state.
func run(t *testing.T, events func(p *Progress)) *recordingPrinter {
	printer := &recordingPrinter{}
	p := NewProgress(printer, 0)
	events(p)
	p.Finish()
	rtest.Assert(t, printer.final != nil, "no final report")
	return printer
}

func TestProgressFileInChunks(t *testing.T) {
	printer := run(t, func(p *Progress) {
		p.AddEntry(250000)
		p.AddProgress("big.bin", ActionFileRestored, 100000, 250000)
		p.AddProgress("big.bin", ActionFileRestored, 100000, 250000)
		rtest.Equals(t, 0, len(p.printer.(*recordingPrinter).items))
		p.AddProgress("big.bin", ActionFileRestored, 50000, 250000)
	})

	rtest.Equals(t, State{EntriesDone: 1, EntriesTotal: 1, BytesDone: 250000, BytesTotal: 250000}, *printer.final)
	rtest.Equals(t, []completedItem{{ActionFileRestored, "big.bin", 250000}}, printer.items)
}

func TestProgressEntriesWithoutContent(t *testing.T) {
	printer := run(t, func(p *Progress) {
		p.AddEntry(0)
		p.AddEntry(0)
		p.AddEntry(0)
		p.AddProgress("docs/", ActionFolderCreated, 0, 0)
		p.AddProgress("docs/link", ActionSymlinkCreated, 0, 0)
		p.AddProgress("empty", ActionFileRestored, 0, 0)
	})

	rtest.Equals(t, State{EntriesDone: 3, EntriesTotal: 3}, *printer.final)
	rtest.Equals(t, []completedItem{
		{ActionFolderCreated, "docs/", 0},
		{ActionSymlinkCreated, "docs/link", 0},
		{ActionFileRestored, "empty", 0},
	}, printer.items)
}

func TestProgressFailedAfterPartialWrite(t *testing.T) {
	printer := run(t, func(p *Progress) {
		p.AddEntry(100)
		p.AddEntry(10)
		p.AddProgress("a", ActionFileRestored, 40, 100)
		p.AddFailed("a", 100, errors.New("block missing"))
		p.AddProgress("b", ActionFileRestored, 10, 10)
	})

	rtest.Equals(t, State{
		EntriesDone: 1, EntriesTotal: 2, EntriesFailed: 1,
		BytesDone: 10, BytesTotal: 110, BytesFailed: 100,
	}, *printer.final)
	rtest.Equals(t, []string{"a: block missing"}, printer.failures)
}

func TestProgressUpdate(t *testing.T) {
	printer := &recordingPrinter{}
	p := NewProgress(printer, 0)
	p.AddEntry(5)
	p.update(time.Second, false)
	p.Finish()

	rtest.Equals(t, []State{{EntriesTotal: 1, BytesTotal: 5}}, printer.updates)
}

func TestProgressNil(t *testing.T) {
	var p *Progress
	p.AddEntry(1)
	p.AddProgress("x", ActionFileRestored, 1, 1)
	p.AddFailed("x", 1, errors.New("x"))
	p.Finish()
}
