package termstatus

import (
	"bytes"
	"testing"

	rtest "github.com/dupres/dupres/internal/test"
)

func TestPrintWithoutStatus(t *testing.T) {
	var out, errOut bytes.Buffer
	term, cancel := Setup(&out, &errOut, false)
	rtest.Assert(t, !term.CanUpdateStatus(), "buffer must not support status lines")

	term.Print("restored a.txt")
	term.Error("error: b.bin: volume missing\n")
	term.SetStatus([]string{"[0:01] 1 / 2 files", "50.000% done"})
	cancel()

	rtest.Equals(t, "restored a.txt\n[0:01] 1 / 2 files\n50.000% done\n", out.String())
	rtest.Equals(t, "error: b.bin: volume missing\n", errOut.String())
}

func TestWritesAfterShutdown(t *testing.T) {
	var out bytes.Buffer
	term, cancel := Setup(&out, &out, true)
	cancel()

	// must not block
	term.Print("late")
	term.SetStatus([]string{"late"})
	term.Flush()
	rtest.Equals(t, "", out.String())
}

func TestSanitizeLines(t *testing.T) {
	var tests = []struct {
		input  []string
		width  int
		output []string
	}{
		{nil, 80, nil},
		{[]string{""}, 80, []string{""}},
		{[]string{"dir/a.txt"}, 0, []string{"dir/a.txt"}},
		{[]string{"dir/a.txt", "second"}, 80, []string{"dir/a.txt\n", "second"}},
		{[]string{"abcdefghij"}, 6, []string{"abcd"}},
		{[]string{"tab\there"}, 0, []string{"\"tab\\there\""}},
	}

	for _, test := range tests {
		t.Run("", func(t *testing.T) {
			out := sanitizeLines(append([]string(nil), test.input...), test.width)
			rtest.Equals(t, test.output, out)
		})
	}
}
