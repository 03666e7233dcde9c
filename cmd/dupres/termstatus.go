package main

import (
	"github.com/dupres/dupres/internal/ui/termstatus"
)

// setupTermstatus creates a new termstatus and routes Printf, Verbosef and
// Warnf through it. The returned function must be called to shut down the
// termstatus.
func setupTermstatus() (*termstatus.Terminal, func()) {
	term, cancel := termstatus.Setup(globalOptions.stdout, globalOptions.stderr, globalOptions.Quiet)
	globalOptions.term = term

	return term, func() {
		globalOptions.term = nil
		cancel()
	}
}
