package fuzz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/detsim/pkg/network"
)

func TestSampledConfigsAreAlwaysValid(t *testing.T) {
	s := NewSampler(1)
	for i := 0; i < 1000; i++ {
		cfg := s.SampleNetworkConfig(network.DefaultConfig())
		require.NoError(t, cfg.Validate(), "sample %d", i)
		assert.True(t, cfg.LinkFailuresEnabled())
		assert.True(t, cfg.PartitionsEnabled())
	}
}

func TestSamplerIsReproducible(t *testing.T) {
	a := NewSampler(42)
	b := NewSampler(42)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Seed(), b.Seed())
		assert.Equal(t,
			a.SampleNetworkConfig(network.DefaultConfig()),
			b.SampleNetworkConfig(network.DefaultConfig()))
	}
}

func TestSeedIsNeverZero(t *testing.T) {
	s := NewSampler(7)
	for i := 0; i < 10_000; i++ {
		assert.NotZero(t, s.Seed())
	}
}
