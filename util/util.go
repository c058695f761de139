// Package util contains misc internal utilities.
package util

import "time"

// Clamp returns x limited to the interval [low, high].
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// SecsToDuration converts a floating point number of seconds to a Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
