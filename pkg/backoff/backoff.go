// Package backoff provides exponentially growing wait times for retry loops.
package backoff

import (
	"math"
	"time"
)

// ExponentialBackoff yields start*2^(retry-1) capped by max. Next reports
// false once the uncapped wait would exceed max, signalling the caller to
// give up.
type ExponentialBackoff struct {
	start time.Duration
	max   time.Duration
}

func NewExponentialBackoff(start, max time.Duration) ExponentialBackoff {
	return ExponentialBackoff{start: start, max: max}
}

// Next returns the wait time before attempt number retry (1-based).
func (b ExponentialBackoff) Next(retry int) (time.Duration, bool) {
	if retry < 1 {
		retry = 1
	}
	d := time.Duration(float64(b.start) * math.Pow(2, float64(retry-1)))
	if d > b.max || d <= 0 {
		return 0, false
	}
	return d, true
}
