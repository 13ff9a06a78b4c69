// Package dsp implements the per-channel signal conditioning applied to raw
// EMG samples: a second-order Butterworth high-pass for DC removal, a mains
// notch, and full-wave rectification. Filters run in transposed direct form
// II so a single sample costs two multiplies per delay element and state
// carries across calls.
package dsp

import (
	"math"
)

// Biquad is a second-order IIR section in transposed direct form II.
// Coefficients are normalized so a0 == 1.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// Process filters one sample and advances the internal state
func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// Reset clears the internal state back to the step-response seed, so a
// fresh run behaves identically to a newly constructed filter.
func (f *Biquad) Reset() {
	f.z1, f.z2 = stepResponseState(f.b0, f.b1, f.b2, f.a1, f.a2)
}

// Coefficients returns the normalized transfer function coefficients
// (b0 b1 b2, 1 a1 a2)
func (f *Biquad) Coefficients() (b [3]float64, a [3]float64) {
	return [3]float64{f.b0, f.b1, f.b2}, [3]float64{1, f.a1, f.a2}
}

// NewHighPass designs a second-order Butterworth high-pass filter with the
// given cutoff in Hz via the bilinear transform. Used as the DC blocker.
func NewHighPass(cutoffHz, sampleRate float64) *Biquad {
	k := math.Tan(math.Pi * cutoffHz / sampleRate)
	norm := 1 / (1 + math.Sqrt2*k + k*k)

	f := &Biquad{
		b0: norm,
		b1: -2 * norm,
		b2: norm,
		a1: 2 * (k*k - 1) * norm,
		a2: (1 - math.Sqrt2*k + k*k) * norm,
	}
	f.Reset()
	return f
}

// NewNotch designs a second-order notch filter centered at centerHz with
// quality factor q. The design matches the standard RBJ cookbook notch, so
// the -3 dB bandwidth is centerHz/q.
func NewNotch(centerHz, q, sampleRate float64) *Biquad {
	w0 := 2 * math.Pi * centerHz / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)
	a0 := 1 + alpha

	f := &Biquad{
		b0: 1 / a0,
		b1: -2 * cosw / a0,
		b2: 1 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
	f.Reset()
	return f
}

// stepResponseState computes the initial delay-line state whose output
// settles instantly for a unit step input. Solving (I - A^T) z = B for the
// second-order companion matrix gives the closed form below. Seeding with
// this state suppresses the startup transient a zero-initialized filter
// would impose on the first samples of a stream.
func stepResponseState(b0, b1, b2, a1, a2 float64) (z1, z2 float64) {
	bb1 := b1 - a1*b0
	bb2 := b2 - a2*b0
	det := 1 + a1 + a2

	z1 = (bb1 + bb2) / det
	z2 = ((1+a1)*bb2 - a2*bb1) / det
	return z1, z2
}
