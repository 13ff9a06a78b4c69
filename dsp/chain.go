package dsp

import (
	"fmt"

	"github.com/c360/emgstream/errors"
)

// ChainConfig holds the filter design parameters shared by all channels
type ChainConfig struct {
	SampleRate float64
	HighPassHz float64
	NotchHz    float64
	NotchQ     float64
}

// Chain applies the full conditioning pipeline to each channel
// independently: DC removal, mains notch, then rectification. Each channel
// owns its filter state, so samples for one channel never disturb another.
// Chain is not safe for concurrent use; the acquisition producer is its
// only caller.
type Chain struct {
	highpass []*Biquad
	notch    []*Biquad
}

// NewChain builds a conditioning chain for the given number of channels
func NewChain(channels int, cfg ChainConfig) (*Chain, error) {
	if channels < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("channel count %d must be positive", channels),
			"Chain", "NewChain", "validate channels")
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("sample rate %v must be positive", cfg.SampleRate),
			"Chain", "NewChain", "validate sample rate")
	}

	c := &Chain{
		highpass: make([]*Biquad, channels),
		notch:    make([]*Biquad, channels),
	}
	for ch := 0; ch < channels; ch++ {
		c.highpass[ch] = NewHighPass(cfg.HighPassHz, cfg.SampleRate)
		c.notch[ch] = NewNotch(cfg.NotchHz, cfg.NotchQ, cfg.SampleRate)
	}
	return c, nil
}

// Channels returns the number of channels the chain conditions
func (c *Chain) Channels() int {
	return len(c.highpass)
}

// Process conditions one raw sample for the given channel and returns the
// rectified result. Channel must be in [0, Channels()).
func (c *Chain) Process(channel int, raw float64) float64 {
	y := c.highpass[channel].Process(raw)
	y = c.notch[channel].Process(y)
	if y < 0 {
		y = -y
	}
	return y
}

// Reset reseeds every channel's filter state
func (c *Chain) Reset() {
	for ch := range c.highpass {
		c.highpass[ch].Reset()
		c.notch[ch].Reset()
	}
}
