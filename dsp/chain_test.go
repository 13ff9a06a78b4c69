package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/emgstream/errors"
)

func testChainConfig() ChainConfig {
	return ChainConfig{
		SampleRate: testRate,
		HighPassHz: testHP,
		NotchHz:    testF0,
		NotchQ:     testQ,
	}
}

func TestNewChainValidation(t *testing.T) {
	_, err := NewChain(0, testChainConfig())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	cfg := testChainConfig()
	cfg.SampleRate = 0
	_, err = NewChain(4, cfg)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	c, err := NewChain(4, testChainConfig())
	require.NoError(t, err)
	assert.Equal(t, 4, c.Channels())
}

func TestChainOutputIsRectified(t *testing.T) {
	c, err := NewChain(1, testChainConfig())
	require.NoError(t, err)

	for i := 0; i < 4000; i++ {
		x := math.Sin(2*math.Pi*25*float64(i)/testRate) + 0.5
		y := c.Process(0, x)
		require.GreaterOrEqual(t, y, 0.0, "sample %d", i)
	}
}

func TestChainIsDeterministic(t *testing.T) {
	a, err := NewChain(1, testChainConfig())
	require.NoError(t, err)
	b, err := NewChain(1, testChainConfig())
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		x := math.Sin(2*math.Pi*40*float64(i)/testRate) * 0.001
		require.Equal(t, a.Process(0, x), b.Process(0, x), "sample %d", i)
	}
}

func TestChainChannelsAreIndependent(t *testing.T) {
	solo, err := NewChain(1, testChainConfig())
	require.NoError(t, err)
	pair, err := NewChain(2, testChainConfig())
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		x := math.Sin(2 * math.Pi * 40 * float64(i) / testRate)
		want := solo.Process(0, x)

		// Interleave noise on channel 1; channel 0 must not notice
		pair.Process(1, float64(i%7))
		require.Equal(t, want, pair.Process(0, x), "sample %d", i)
	}
}

func TestChainRemovesDCOffset(t *testing.T) {
	c, err := NewChain(1, testChainConfig())
	require.NoError(t, err)

	// A pure offset should settle to near zero after the high-pass
	var last float64
	n := int(10 * testRate)
	for i := 0; i < n; i++ {
		last = c.Process(0, 2.5)
	}
	assert.Less(t, last, 0.01)
}

func TestChainResetReproducesRun(t *testing.T) {
	c, err := NewChain(2, testChainConfig())
	require.NoError(t, err)

	first := make([]float64, 100)
	for i := range first {
		first[i] = c.Process(1, float64(i%13))
	}

	c.Reset()
	for i := range first {
		require.Equal(t, first[i], c.Process(1, float64(i%13)), "sample %d", i)
	}
}
