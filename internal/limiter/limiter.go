// Package limiter throttles reads from backup volumes.
package limiter

import (
	"io"
)

// Limiter limits the rate at which volume contents are read.
type Limiter interface {
	// Downstream returns a rate limited reader that is intended to be used
	// for reading volume entries.
	Downstream(r io.Reader) io.Reader
}
