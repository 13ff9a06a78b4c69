package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate = 2000.0
	testHP   = 0.5
	testF0   = 60.0
	testQ    = 30.0
)

func TestHighPassBlocksDC(t *testing.T) {
	f := NewHighPass(testHP, testRate)

	// Zero gain at DC means the numerator sums to zero
	b, a := f.Coefficients()
	assert.InDelta(t, 0, b[0]+b[1]+b[2], 1e-12)

	// Unity gain at Nyquist
	nyq := (b[0] - b[1] + b[2]) / (1 - a[1] + a[2])
	assert.InDelta(t, 1, nyq, 1e-9)
}

func TestHighPassSeededStateSuppressesStepTransient(t *testing.T) {
	f := NewHighPass(testHP, testRate)

	// With step-response seeding a constant input produces the DC gain
	// (zero) from the very first sample instead of a decaying transient.
	for i := 0; i < 100; i++ {
		y := f.Process(1.0)
		assert.InDelta(t, 0, y, 1e-9, "sample %d", i)
	}
}

func TestHighPassZeroStateWouldTransient(t *testing.T) {
	f := NewHighPass(testHP, testRate)
	f.z1, f.z2 = 0, 0

	// Without seeding the first output of a unit step is near b0 ~= 1
	y := f.Process(1.0)
	assert.Greater(t, y, 0.9)
}

func TestNotchUnityDCGain(t *testing.T) {
	f := NewNotch(testF0, testQ, testRate)

	for i := 0; i < 100; i++ {
		y := f.Process(1.0)
		assert.InDelta(t, 1, y, 1e-9, "sample %d", i)
	}
}

func TestNotchAttenuatesCenterFrequency(t *testing.T) {
	f := NewNotch(testF0, testQ, testRate)

	n := int(2 * testRate)
	var peak float64
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * testF0 * float64(i) / testRate)
		y := f.Process(x)
		// Skip the transient, then the tone should be gone
		if i > n/2 {
			peak = math.Max(peak, math.Abs(y))
		}
	}
	assert.Less(t, peak, 0.01)
}

func TestNotchPassesOutOfBandTone(t *testing.T) {
	f := NewNotch(testF0, testQ, testRate)

	n := int(2 * testRate)
	var peak float64
	for i := 0; i < n; i++ {
		x := math.Sin(2 * math.Pi * 10 * float64(i) / testRate)
		y := f.Process(x)
		if i > n/2 {
			peak = math.Max(peak, math.Abs(y))
		}
	}
	assert.InDelta(t, 1, peak, 0.05)
}

func TestResetRestoresSeededState(t *testing.T) {
	f := NewHighPass(testHP, testRate)

	first := make([]float64, 10)
	for i := range first {
		first[i] = f.Process(float64(i))
	}

	f.Reset()
	for i := range first {
		require.Equal(t, first[i], f.Process(float64(i)), "sample %d", i)
	}
}
