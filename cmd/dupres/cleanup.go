package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dupres/dupres/internal/debug"
)

// createGlobalContext returns a context which is cancelled on the first
// SIGINT or SIGTERM. Running restores then stop at the next block and remove
// their temporary files. A second signal exits immediately.
func createGlobalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go watchSignals(ch, cancel)

	return ctx
}

func watchSignals(ch <-chan os.Signal, cancel context.CancelFunc) {
	s := <-ch
	debug.Log("signal %v received, stopping restore", s)
	Warnf("signal %v received, stopping (press Ctrl-C again to abort immediately)\n", s)

	if os.Getenv("DUPRES_DEBUG_STACKTRACE_SIGINT") != "" {
		_, _ = os.Stderr.WriteString("\n--- STACKTRACE START ---\n\n" +
			debug.DumpStacktrace() +
			"\n--- STACKTRACE END ---\n")
	}
	cancel()

	s = <-ch
	debug.Log("second signal %v received, exiting", s)
	Exit(130)
}

// Exit terminates the process with the given exit code.
func Exit(code int) {
	debug.Log("exiting with status code %d", code)
	os.Exit(code)
}
