//go:build !(aix || linux || solaris || darwin || dragonfly || freebsd || netbsd || openbsd)

package progress

import "os"

func setupSignals(_ chan<- os.Signal) {}
