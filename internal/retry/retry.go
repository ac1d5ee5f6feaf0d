// Package retry has the backoff arithmetic shared by the HTTP clients and
// the webhook sink.
package retry

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Backoff is capped exponential backoff with symmetric jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// Jitter is the fraction of the delay added or removed at random.
	Jitter float64
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for range attempt {
		if d >= b.Max/2 {
			d = b.Max

			break
		}

		d *= 2
	}

	d = min(d, b.Max)

	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (rand.Float64()*2 - 1)) //nolint:gosec // jitter
	}

	return d
}

// Ceiling is the longest Delay can return.
func (b Backoff) Ceiling() time.Duration {
	return b.Max + time.Duration(float64(b.Max)*b.Jitter)
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HeaderSeconds reads a header carrying a positive number of seconds, such
// as Retry-After or X-Ratelimit-Reset. Fractions are allowed. Absent or
// malformed values yield 0.
func HeaderSeconds(h http.Header, name string) time.Duration {
	v := strings.TrimSpace(h.Get(name))
	if v == "" {
		return 0
	}

	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return 0
	}

	return time.Duration(secs * float64(time.Second))
}
