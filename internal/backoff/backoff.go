// Package backoff centralizes retry delay calculation so the client and the
// batch fetcher share one implementation.
package backoff

import (
	"math/rand"
	"time"
)

// Delay returns the exponential backoff duration for the given attempt
// (counted from 0) with uniform jitter applied on top. The result never
// exceeds max.
func Delay(attempt int, initial, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Limit the exponent so the float math cannot overflow.
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(initial) * Pow(multiplier, attempt))
	if d < 0 || d > max {
		d = max
	}

	jitter = clampJitter(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(d) * jitter * rand.Float64())
		if d+extra > max {
			d = max
		} else {
			d += extra
		}
	}
	return d
}

// Pow computes base^exponent by integer exponentiation.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}
