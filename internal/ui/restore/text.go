package restore

import (
	"fmt"
	"strings"
	"time"

	"github.com/dupres/dupres/internal/ui"
)

type textPrinter struct {
	terminal  term
	verbosity uint
	verify    bool
}

// NewTextProgress returns a printer for humans. Completed items are listed
// at verbosity 3 and above. In verify mode nothing is written, the wording
// changes accordingly.
func NewTextProgress(terminal term, verbosity uint, verify bool) ProgressPrinter {
	return &textPrinter{terminal: terminal, verbosity: verbosity, verify: verify}
}

func (t *textPrinter) verb() string {
	if t.verify {
		return "verified"
	}
	return "restored"
}

func (t *textPrinter) summaryVerb() string {
	if t.verify {
		return "Verified"
	}
	return "Restored"
}

func (t *textPrinter) Update(s State, elapsed time.Duration) {
	status := fmt.Sprintf("[%s] %s  %d / %d entries, %s / %s",
		ui.FormatDuration(elapsed), ui.FormatPercent(s.BytesDone, s.BytesTotal),
		s.EntriesDone, s.EntriesTotal, ui.FormatBytes(s.BytesDone), ui.FormatBytes(s.BytesTotal))
	if s.EntriesFailed > 0 {
		status += fmt.Sprintf(", %d failed", s.EntriesFailed)
	}
	if eta := estimate(s, elapsed); eta > 0 {
		status += " ETA " + ui.FormatDuration(eta)
	}
	t.terminal.SetStatus([]string{status})
}

// estimate returns the remaining time at the average rate so far, or zero
// if there is nothing to go by.
func estimate(s State, elapsed time.Duration) time.Duration {
	done := s.BytesDone + s.BytesFailed
	if done == 0 || done >= s.BytesTotal || elapsed < time.Second {
		return 0
	}
	return time.Duration(float64(elapsed) * float64(s.BytesTotal-done) / float64(done))
}

func (t *textPrinter) Error(item string, err error) {
	t.terminal.Error(fmt.Sprintf("error: %v: %v", ui.Quote(item), err))
}

func (t *textPrinter) CompleteItem(action Action, item string, size uint64) {
	if t.verbosity < 3 {
		return
	}

	var line string
	switch action {
	case ActionFolderCreated:
		line = fmt.Sprintf("%-9s %v", "folder", item)
	case ActionSymlinkCreated:
		line = fmt.Sprintf("%-9s %v", "symlink", item)
	case ActionFileRestored, ActionFileVerified:
		line = fmt.Sprintf("%-9s %v (%s)", t.verb(), item, ui.FormatBytes(size))
	default:
		panic("unknown action " + string(action))
	}
	t.terminal.Print(line)
}

func (t *textPrinter) Finish(s State, elapsed time.Duration) {
	t.terminal.SetStatus(nil)

	var sb strings.Builder
	if s.EntriesDone == s.EntriesTotal {
		fmt.Fprintf(&sb, "Summary: %s %d entries (%s) in %s",
			t.summaryVerb(), s.EntriesTotal, ui.FormatBytes(s.BytesTotal), ui.FormatDuration(elapsed))
	} else {
		fmt.Fprintf(&sb, "Summary: %s %d / %d entries (%s / %s) in %s",
			t.summaryVerb(), s.EntriesDone, s.EntriesTotal,
			ui.FormatBytes(s.BytesDone), ui.FormatBytes(s.BytesTotal), ui.FormatDuration(elapsed))
	}
	if s.EntriesFailed > 0 {
		fmt.Fprintf(&sb, ", %d failed (%s)", s.EntriesFailed, ui.FormatBytes(s.BytesFailed))
	}
	t.terminal.Print(sb.String())
}
