package ui

// Terminal receives the messages and status lines of a running command.
// termstatus.Terminal writes them to the console.
type Terminal interface {
	// Print writes a message to stdout, a trailing newline is added if
	// missing.
	Print(line string)
	// Error writes a message to stderr.
	Error(line string)
	// SetStatus replaces the status lines at the bottom of the output.
	SetStatus(lines []string)
	// CanUpdateStatus reports whether status lines are redrawn in place.
	CanUpdateStatus() bool
}
