package randutil

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleFailureTimeIsAfterBase(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := time.Unix(0, 0).UTC()

	for i := 0; i < 1000; i++ {
		sampled := SampleFailureTime(base, time.Second, rng)
		assert.False(t, sampled.Before(base))
	}
}

func TestSampleFailureTimeIsDeterministic(t *testing.T) {
	base := time.Unix(0, 0).UTC()

	first := make([]time.Time, 0, 100)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		first = append(first, SampleFailureTime(base, 300*time.Millisecond, rng))
	}

	rng = rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		assert.Equal(t, first[i], SampleFailureTime(base, 300*time.Millisecond, rng))
	}
}

func TestSampleFailureTimeScalesWithMean(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	base := time.Unix(0, 0).UTC()

	var total time.Duration
	const n = 10_000
	for i := 0; i < n; i++ {
		total += SampleFailureTime(base, time.Second, rng).Sub(base)
	}
	mean := total / n

	// The sample mean of 10k exponential draws sits close to the true mean.
	assert.InDelta(t, float64(time.Second), float64(mean), float64(100*time.Millisecond))
}
