package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dupres/dupres/internal/ui"
	"github.com/dupres/dupres/internal/ui/progress"
	restoreui "github.com/dupres/dupres/internal/ui/restore"
	"github.com/dupres/dupres/internal/ui/termstatus"
)

// calculateProgressInterval returns the interval configured via
// DUPRES_PROGRESS_FPS or if unset returns an interval for 60fps on
// interactive terminals and 0 (only report on SIGUSR1 and at the end)
// otherwise.
func calculateProgressInterval(show bool, json bool, canUpdateStatus bool) time.Duration {
	interval := time.Second / 60
	fps, err := strconv.ParseFloat(os.Getenv("DUPRES_PROGRESS_FPS"), 64)
	if err == nil && fps > 0 {
		if fps > 60 {
			fps = 60
		}
		interval = time.Duration(float64(time.Second) / fps)
	} else if !json && !canUpdateStatus || !show {
		interval = 0
	}
	return interval
}

// newIndexTerminalProgress returns a counter for the index files read
// before a restore.
func newIndexTerminalProgress(opts GlobalOptions, term *termstatus.Terminal) *progress.Counter {
	if opts.Quiet || opts.JSON {
		return nil
	}
	interval := calculateProgressInterval(true, false, term.CanUpdateStatus())
	return progress.NewCounter(interval, 0, func(value, total uint64, d time.Duration, final bool) {
		if final {
			term.SetStatus(nil)
			return
		}
		term.SetStatus([]string{fmt.Sprintf("[%s] %s  %d / %d index files loaded",
			ui.FormatDuration(d), ui.FormatPercent(value, total), value, total)})
	})
}

// newRestoreProgress returns the progress report of a restore run.
func newRestoreProgress(opts GlobalOptions, term *termstatus.Terminal, verify bool) *restoreui.Progress {
	var printer restoreui.ProgressPrinter
	if opts.JSON {
		printer = restoreui.NewJSONProgress(term, opts.verbosity, verify)
	} else {
		printer = restoreui.NewTextProgress(term, opts.verbosity, verify)
	}
	interval := calculateProgressInterval(!opts.Quiet, opts.JSON, term.CanUpdateStatus())
	return restoreui.NewProgress(printer, interval)
}
