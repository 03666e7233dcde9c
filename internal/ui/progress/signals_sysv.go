//go:build aix || linux || solaris

package progress

import (
	"os"
	"os/signal"
	"syscall"
)

func setupSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGUSR1)
}
