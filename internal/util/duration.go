package util

import "time"

// ClampDuration bounds d to [lo, hi]. A non-positive hi means no upper bound.
func ClampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if hi > 0 && d > hi {
		return hi
	}
	return d
}
