package dispatch

import (
	"math"
	"time"
)

// Policy shapes the error backoff. Growth is Initial * Factor^(failures-1),
// capped at Max.
type Policy struct {
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// DefaultPolicy stays inside the reconnect envelope of min(2^attempt, 300s)
func DefaultPolicy() Policy {
	return Policy{
		Initial: 5 * time.Second,
		Factor:  2.0,
		Max:     5 * time.Minute,
	}
}

// Backoff returns the delay after the given number of consecutive failures.
// Zero failures means no delay.
func Backoff(p Policy, failures int) time.Duration {
	if failures <= 0 || p.Initial <= 0 {
		return 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	d := float64(p.Initial) * math.Pow(factor, float64(failures-1))
	if p.Max > 0 && (d > float64(p.Max) || math.IsInf(d, 1)) {
		return p.Max
	}
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
