package limiter

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limits represents static read limits.
type Limits struct {
	// DownloadKb is the read limit in KiB/s, zero disables the limit.
	DownloadKb int
}

type staticLimiter struct {
	downstream *rate.Limiter
}

// NewStaticLimiter constructs a Limiter with a fixed (static) read rate cap.
func NewStaticLimiter(l Limits) Limiter {
	var downstream *rate.Limiter
	if l.DownloadKb > 0 {
		downstream = rate.NewLimiter(rate.Limit(toByteRate(l.DownloadKb)), int(toByteRate(l.DownloadKb)))
	}

	return staticLimiter{downstream: downstream}
}

func (l staticLimiter) Downstream(r io.Reader) io.Reader {
	if l.downstream == nil {
		return r
	}
	return &rateLimitedReader{r, l.downstream}
}

type rateLimitedReader struct {
	reader  io.Reader
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(b []byte) (int, error) {
	// never read more than the bucket can hold
	if burst := r.limiter.Burst(); len(b) > burst {
		b = b[:burst]
	}
	n, err := r.reader.Read(b)
	if n > 0 {
		if werr := r.limiter.WaitN(context.TODO(), n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func toByteRate(val int) float64 {
	return float64(val) * 1024.
}
