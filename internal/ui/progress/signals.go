package progress

import (
	"os"
	"sync"
)

// progressChannel returns a channel with which a single listener receives
// each incoming progress signal.
func progressChannel() <-chan os.Signal {
	signals.Do(func() {
		signals.ch = make(chan os.Signal, 1)
		setupSignals(signals.ch)
	})

	return signals.ch
}

// Only one listener receives each incoming signal.
var signals struct {
	ch chan os.Signal
	sync.Once
}
