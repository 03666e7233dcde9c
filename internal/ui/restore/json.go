package restore

import (
	"time"

	"github.com/dupres/dupres/internal/ui"
)

type jsonPrinter struct {
	terminal  term
	verbosity uint
	verify    bool
}

// NewJSONProgress returns a printer which writes one JSON object per line.
func NewJSONProgress(terminal term, verbosity uint, verify bool) ProgressPrinter {
	return &jsonPrinter{terminal: terminal, verbosity: verbosity, verify: verify}
}

func (t *jsonPrinter) during() string {
	if t.verify {
		return "verify"
	}
	return "restore"
}

func (t *jsonPrinter) counts(s State, elapsed time.Duration) stateJSON {
	return stateJSON{
		SecondsElapsed: uint64(elapsed / time.Second),
		EntriesTotal:   s.EntriesTotal,
		EntriesDone:    s.EntriesDone,
		EntriesFailed:  s.EntriesFailed,
		BytesTotal:     s.BytesTotal,
		BytesDone:      s.BytesDone,
		BytesFailed:    s.BytesFailed,
	}
}

func (t *jsonPrinter) Update(s State, elapsed time.Duration) {
	msg := statusJSON{MessageType: "status", stateJSON: t.counts(s, elapsed)}
	if s.BytesTotal > 0 {
		msg.PercentDone = float64(s.BytesDone) / float64(s.BytesTotal)
	}
	t.terminal.Print(ui.ToJSONString(msg))
}

func (t *jsonPrinter) Error(item string, err error) {
	t.terminal.Error(ui.ToJSONString(errorJSON{
		MessageType: "error",
		Error:       errorMessage{Message: err.Error()},
		During:      t.during(),
		Item:        item,
	}))
}

func (t *jsonPrinter) CompleteItem(action Action, item string, size uint64) {
	if t.verbosity < 3 {
		return
	}

	var kind string
	switch action {
	case ActionFolderCreated:
		kind = "folder"
	case ActionSymlinkCreated:
		kind = "symlink"
	case ActionFileRestored, ActionFileVerified:
		kind = "file"
	default:
		panic("unknown action " + string(action))
	}

	t.terminal.Print(ui.ToJSONString(itemJSON{
		MessageType: "verbose_status",
		Action:      t.during(),
		Kind:        kind,
		Item:        item,
		Size:        size,
	}))
}

func (t *jsonPrinter) Finish(s State, elapsed time.Duration) {
	t.terminal.Print(ui.ToJSONString(summaryJSON{
		MessageType: "summary",
		stateJSON:   t.counts(s, elapsed),
	}))
}

type stateJSON struct {
	SecondsElapsed uint64 `json:"seconds_elapsed,omitempty"`
	EntriesTotal   uint64 `json:"total_entries,omitempty"`
	EntriesDone    uint64 `json:"entries_done,omitempty"`
	EntriesFailed  uint64 `json:"entries_failed,omitempty"`
	BytesTotal     uint64 `json:"total_bytes,omitempty"`
	BytesDone      uint64 `json:"bytes_done,omitempty"`
	BytesFailed    uint64 `json:"bytes_failed,omitempty"`
}

type statusJSON struct {
	MessageType string  `json:"message_type"` // "status"
	PercentDone float64 `json:"percent_done"`
	stateJSON
}

type summaryJSON struct {
	MessageType string `json:"message_type"` // "summary"
	stateJSON
}

type errorMessage struct {
	Message string `json:"message"`
}

type errorJSON struct {
	MessageType string       `json:"message_type"` // "error"
	Error       errorMessage `json:"error"`
	During      string       `json:"during"`
	Item        string       `json:"item"`
}

type itemJSON struct {
	MessageType string `json:"message_type"` // "verbose_status"
	Action      string `json:"action"`
	Kind        string `json:"kind"`
	Item        string `json:"item"`
	Size        uint64 `json:"size"`
}
