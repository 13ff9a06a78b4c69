package stream

import (
	"fmt"

	"github.com/c360/emgstream/errors"
	"github.com/c360/emgstream/metric"
	"github.com/c360/emgstream/pkg/buffer"
)

// LiveBuffer holds the most recent conditioned samples per channel for the
// live view. Each channel gets its own bounded ring; once full, the oldest
// sample is evicted so the view always shows the freshest window.
type LiveBuffer struct {
	labels []string
	rings  []buffer.Buffer[float64]
}

// NewLiveBuffer creates per-channel rings of the given capacity. labels must
// carry one entry per channel.
func NewLiveBuffer(channels, capacity int, labels []string, registry *metric.Registry) (*LiveBuffer, error) {
	if channels < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("channel count %d must be positive", channels),
			"LiveBuffer", "NewLiveBuffer", "validate channels")
	}
	if len(labels) != channels {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%d labels for %d channels", len(labels), channels),
			"LiveBuffer", "NewLiveBuffer", "validate labels")
	}

	lb := &LiveBuffer{
		labels: labels,
		rings:  make([]buffer.Buffer[float64], channels),
	}
	for ch := 0; ch < channels; ch++ {
		opts := []buffer.Option[float64]{
			buffer.WithOverflowPolicy[float64](buffer.DropOldest),
		}
		if registry != nil {
			opts = append(opts, buffer.WithMetrics[float64](registry, fmt.Sprintf("live_ch%d", ch)))
		}
		ring, err := buffer.NewRing(capacity, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "LiveBuffer", "NewLiveBuffer", "ring creation")
		}
		lb.rings[ch] = ring
	}
	return lb, nil
}

// Channels returns the number of channels held
func (lb *LiveBuffer) Channels() int {
	return len(lb.rings)
}

// Labels returns the channel annotations in channel order
func (lb *LiveBuffer) Labels() []string {
	out := make([]string, len(lb.labels))
	copy(out, lb.labels)
	return out
}

// Append stores one sample for a channel. Samples for unknown channels are
// ignored.
func (lb *LiveBuffer) Append(channel int, value float64) {
	if channel < 0 || channel >= len(lb.rings) {
		return
	}
	_ = lb.rings[channel].Write(value)
}

// Channel returns the buffered samples for one channel in arrival order
// without consuming them
func (lb *LiveBuffer) Channel(channel int) []float64 {
	if channel < 0 || channel >= len(lb.rings) {
		return nil
	}
	return lb.rings[channel].Snapshot()
}

// Snapshot returns the buffered samples for every channel keyed by muscle
// label, in arrival order
func (lb *LiveBuffer) Snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(lb.rings))
	for ch, ring := range lb.rings {
		out[lb.labels[ch]] = ring.Snapshot()
	}
	return out
}

// Clear empties every channel ring
func (lb *LiveBuffer) Clear() {
	for _, ring := range lb.rings {
		ring.Clear()
	}
}
