//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package progress

import (
	"os"
	"os/signal"
	"syscall"
)

func setupSignals(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGINFO, syscall.SIGUSR1)
}
