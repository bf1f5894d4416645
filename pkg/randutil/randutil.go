// Package randutil holds the stochastic sampling helpers shared by the
// fault state machines. Every draw goes through the single engine RNG so
// runs replay identically from a seed.
package randutil

import (
	"math/rand"
	"time"
)

// SampleFailureTime draws an exponentially distributed interval with the
// given mean and returns base + interval. It is used uniformly for
// inter-failure times and recovery durations. Callers are responsible for
// rejecting zero means at configuration validation; a zero mean here would
// degenerate to base.
func SampleFailureTime(base time.Time, mean time.Duration, rng *rand.Rand) time.Time {
	// ExpFloat64 has rate 1; scaling by the mean gives rate 1/mean.
	interval := time.Duration(rng.ExpFloat64() * float64(mean))
	return base.Add(interval)
}
