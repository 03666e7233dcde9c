// Package termstatus serializes terminal output of concurrent writers and
// maintains status lines at the bottom of the screen.
package termstatus

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dupres/dupres/internal/terminal"
	"github.com/dupres/dupres/internal/ui"
)

var _ ui.Terminal = &Terminal{}

// Terminal writes the messages of restore workers and progress reporters
// from a single goroutine. On a console the status lines stay below the
// messages and are redrawn in place, otherwise they are printed like
// messages.
type Terminal struct {
	out, errOut io.Writer
	events      chan event
	// closed when Run returns, sends to events must not block afterwards
	closed chan struct{}

	inPlace bool
	fd      uintptr
	clear   func(io.Writer, uintptr) error
	up      func(io.Writer, uintptr, int) error

	// number of status lines on screen
	shown int
}

// event is one request for the output goroutine.
type event struct {
	line  string
	toErr bool

	setStatus bool
	status    []string

	barrier chan struct{}
}

// Setup creates a Terminal and starts its output goroutine. The returned
// function flushes pending output and stops the goroutine, it must be called
// before the program exits.
func Setup(stdout, stderr io.Writer, quiet bool) (*Terminal, func()) {
	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	term := New(stdout, stderr, quiet)
	wg.Add(1)
	go func() {
		defer wg.Done()
		term.Run(ctx)
	}()

	return term, func() {
		term.Flush()
		cancel()
		wg.Wait()
	}
}

// New returns a Terminal writing to out and errOut. Status lines are only
// redrawn when out is a console and disableStatus is false.
func New(out io.Writer, errOut io.Writer, disableStatus bool) *Terminal {
	t := &Terminal{
		out:    out,
		errOut: errOut,
		events: make(chan event),
		closed: make(chan struct{}),
	}
	if disableStatus {
		return t
	}

	f, ok := out.(interface{ Fd() uintptr })
	if ok && terminal.CanUpdateStatus(f.Fd()) {
		t.inPlace = true
		t.fd = f.Fd()
		t.clear = terminal.ClearCurrentLine(t.fd)
		t.up = terminal.MoveCursorUp(t.fd)
	}
	return t
}

// CanUpdateStatus reports whether status lines are redrawn in place.
func (t *Terminal) CanUpdateStatus() bool {
	return t.inPlace
}

// Run writes output until ctx is cancelled. Status lines on the console are
// removed before Run returns.
func (t *Terminal) Run(ctx context.Context) {
	defer close(t.closed)

	var status []string
	for {
		select {
		case <-ctx.Done():
			if t.inPlace && !t.background() {
				t.drawStatus(nil)
			}
			return

		case ev := <-t.events:
			switch {
			case ev.barrier != nil:
				ev.barrier <- struct{}{}
			case ev.setStatus:
				status = ev.status
				t.showStatus(status)
			default:
				t.showMessage(ev, status)
			}
		}
	}
}

// background is true while another process group owns the console, output
// is dropped then.
func (t *Terminal) background() bool {
	return terminal.IsProcessBackground(t.fd)
}

func (t *Terminal) showMessage(ev event, status []string) {
	w := t.out
	if ev.toErr {
		w = t.errOut
	}

	if !t.inPlace {
		t.write(w, ev.line)
		return
	}
	if t.background() {
		return
	}
	if err := t.clear(t.out, t.fd); err != nil {
		t.writeFailed(err)
		return
	}
	if !t.write(w, ev.line) {
		return
	}
	t.drawStatus(status)
}

func (t *Terminal) showStatus(status []string) {
	if !t.inPlace {
		for _, line := range status {
			t.write(t.out, strings.TrimRight(line, "\n")+"\n")
		}
		return
	}
	if !t.background() {
		t.drawStatus(status)
	}
}

// drawStatus writes the status lines starting at the current line and moves
// the cursor back to the first one. Lines left over from a longer status
// are blanked.
func (t *Terminal) drawStatus(status []string) {
	lines := append([]string(nil), status...)
	for len(lines) < t.shown {
		if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
			lines[n-1] += "\n"
		}
		lines = append(lines, "")
	}
	t.shown = len(status)

	for _, line := range lines {
		if err := t.clear(t.out, t.fd); err != nil {
			t.writeFailed(err)
		}
		t.write(t.out, line)
	}
	if len(lines) > 1 {
		if err := t.up(t.out, t.fd, len(lines)-1); err != nil {
			t.writeFailed(err)
		}
	}
}

func (t *Terminal) write(w io.Writer, s string) bool {
	if _, err := io.WriteString(w, s); err != nil {
		t.writeFailed(err)
		return false
	}
	return true
}

func (t *Terminal) writeFailed(err error) {
	_, _ = fmt.Fprintf(t.errOut, "write failed: %v\n", err)
}

func (t *Terminal) send(ev event) {
	select {
	case t.events <- ev:
	case <-t.closed:
	}
}

// Flush waits until all messages sent before were written.
func (t *Terminal) Flush() {
	ch := make(chan struct{})
	t.send(event{barrier: ch})
	select {
	case <-ch:
	case <-t.closed:
	}
}

func (t *Terminal) print(line string, toErr bool) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	t.send(event{line: line, toErr: toErr})
}

// Print writes a message to stdout.
func (t *Terminal) Print(line string) {
	t.print(line, false)
}

// Error writes a message to stderr.
func (t *Terminal) Error(line string) {
	t.print(line, true)
}

// sanitizeLines quotes control characters, truncates the lines to width
// cells if width is positive and terminates all but the last line.
func sanitizeLines(lines []string, width int) []string {
	for i, line := range lines {
		line = ui.Quote(line)
		if width > 0 {
			line = ui.Truncate(line, width-2)
		}
		if i < len(lines)-1 {
			line += "\n"
		}
		lines[i] = line
	}
	return lines
}

// SetStatus replaces the status lines, nil removes them.
func (t *Terminal) SetStatus(lines []string) {
	width := 0
	if t.inPlace {
		if width = terminal.Width(t.fd); width <= 0 {
			width = 80
		}
	}

	lines = sanitizeLines(append([]string(nil), lines...), width)
	t.send(event{setStatus: true, status: lines})
}
