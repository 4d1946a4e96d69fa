package executor

import (
	"math/rand"
	"time"
)

// Retry backoff parameters: 60s base, tripling per retry, capped at 15
// minutes, with ±25% uniform jitter.
const (
	BackoffBase    = 60 * time.Second
	BackoffFactor  = 3
	BackoffCeiling = 15 * time.Minute
)

// RetryBackoff returns the wait before retry n (0-based). jitter supplies a
// uniform [0,1) sample; 0.5 yields exactly the unjittered schedule. Pass
// nil for the default source.
//
//	retry 0 -> ~60s, retry 1 -> ~180s, retry 2 -> ~540s, retry 3+ -> 900s
func RetryBackoff(n int, jitter func() float64) time.Duration {
	if jitter == nil {
		jitter = rand.Float64
	}
	base := BackoffBase
	for i := 0; i < n && base < BackoffCeiling; i++ {
		base *= BackoffFactor
	}
	if base > BackoffCeiling {
		base = BackoffCeiling
	}
	// Scale into [0.75, 1.25) of the base.
	scaled := float64(base) * (0.75 + 0.5*jitter())
	return time.Duration(scaled)
}
