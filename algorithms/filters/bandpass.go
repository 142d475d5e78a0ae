package filters

import (
	"math"
)

// Biquad implements a second-order Butterworth section in Direct Form II.
//
// Coefficients follow the cookbook formulas from Robert Bristow-Johnson's
// "Cookbook formulae for audio EQ biquad filter coefficients"
// Reference: https://webaudio.github.io/Audio-EQ-Cookbook/audio-eq-cookbook.html
type Biquad struct {
	sampleRate float64
	cutoff     float64

	// Normalized coefficients (a0 == 1)
	b0, b1, b2 float64
	a1, a2     float64

	// State variables for direct form II implementation
	w1, w2 float64
}

// butterworthQ gives a maximally flat passband for a single section
const butterworthQ = math.Sqrt2 / 2

// NewLowPass creates a Butterworth low-pass section.
//
// Parameters:
//   - sampleRate: Sample rate in Hz
//   - cutoff: -3 dB cutoff frequency in Hz
func NewLowPass(sampleRate, cutoff float64) *Biquad {
	bq := &Biquad{sampleRate: sampleRate, cutoff: cutoff}

	w0 := bq.normalizedFrequency()
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2.0 * butterworthQ)

	a0 := 1.0 + alpha
	bq.b0 = (1.0 - cosW0) / 2.0 / a0
	bq.b1 = (1.0 - cosW0) / a0
	bq.b2 = (1.0 - cosW0) / 2.0 / a0
	bq.a1 = -2.0 * cosW0 / a0
	bq.a2 = (1.0 - alpha) / a0

	return bq
}

// NewHighPass creates a Butterworth high-pass section.
//
// Parameters:
//   - sampleRate: Sample rate in Hz
//   - cutoff: -3 dB cutoff frequency in Hz
func NewHighPass(sampleRate, cutoff float64) *Biquad {
	bq := &Biquad{sampleRate: sampleRate, cutoff: cutoff}

	w0 := bq.normalizedFrequency()
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2.0 * butterworthQ)

	a0 := 1.0 + alpha
	bq.b0 = (1.0 + cosW0) / 2.0 / a0
	bq.b1 = -(1.0 + cosW0) / a0
	bq.b2 = (1.0 + cosW0) / 2.0 / a0
	bq.a1 = -2.0 * cosW0 / a0
	bq.a2 = (1.0 - alpha) / a0

	return bq
}

// normalizedFrequency computes w0 = 2*pi*fc/Fs, clamped below Nyquist
// to prevent numerical issues.
func (bq *Biquad) normalizedFrequency() float64 {
	w0 := 2.0 * math.Pi * bq.cutoff / bq.sampleRate
	if w0 >= math.Pi {
		w0 = math.Pi * 0.99
	}
	return w0
}

// Process applies the filter to a single sample.
// Uses Direct Form II for numerical stability.
//
// The difference equation is:
// y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
func (bq *Biquad) Process(input float64) float64 {
	// w[n] = x[n] - a1*w[n-1] - a2*w[n-2]
	w := input - bq.a1*bq.w1 - bq.a2*bq.w2

	// y[n] = b0*w[n] + b1*w[n-1] + b2*w[n-2]
	output := bq.b0*w + bq.b1*bq.w1 + bq.b2*bq.w2

	bq.w2 = bq.w1
	bq.w1 = w

	return output
}

// ProcessBuffer applies the filter to an entire buffer of samples.
func (bq *Biquad) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = bq.Process(sample)
	}
	return output
}

// Reset clears the filter's internal state (delay line).
// Call this when processing discontinuous segments.
func (bq *Biquad) Reset() {
	bq.w1, bq.w2 = 0.0, 0.0
}

// Prime sets the delay line to the steady state for a constant input,
// suppressing the startup transient when filtering begins at level.
func (bq *Biquad) Prime(level float64) {
	denom := 1.0 + bq.a1 + bq.a2
	if math.Abs(denom) < 1e-12 {
		bq.Reset()
		return
	}
	ss := level / denom
	bq.w1, bq.w2 = ss, ss
}

// Coefficients returns the normalized biquad coefficients (a0 == 1).
func (bq *Biquad) Coefficients() (b0, b1, b2, a1, a2 float64) {
	return bq.b0, bq.b1, bq.b2, bq.a1, bq.a2
}
