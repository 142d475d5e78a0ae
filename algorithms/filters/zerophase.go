package filters

import (
	"fmt"
	"sort"
)

// ZeroPhase applies Butterworth high-pass and low-pass sections in a
// forward-backward pass, cancelling the phase shift of each section.
// A cutoff of 0 disables the corresponding edge, so the same value
// works as high-pass only, low-pass only, or band-pass.
//
// The forward-backward technique with edge reflection follows
// Gustafsson, "Determining the initial states in forward-backward
// filtering", IEEE Transactions on Signal Processing 44.4 (1996).
type ZeroPhase struct {
	sampleRate float64
	highPass   float64
	lowPass    float64
}

// Samples mirrored on each edge before the forward pass
const edgePad = 6

// NewZeroPhase creates a zero-phase filter. highPass and lowPass are
// cutoff frequencies in Hz; 0 disables an edge.
func NewZeroPhase(sampleRate, highPass, lowPass float64) (*ZeroPhase, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if highPass < 0 || lowPass < 0 {
		return nil, fmt.Errorf("cutoff frequencies must be non-negative")
	}

	nyquist := sampleRate / 2
	if highPass >= nyquist && highPass > 0 {
		return nil, fmt.Errorf("high-pass cutoff %g Hz at or above Nyquist (%g Hz)", highPass, nyquist)
	}
	if lowPass >= nyquist && lowPass > 0 {
		return nil, fmt.Errorf("low-pass cutoff %g Hz at or above Nyquist (%g Hz)", lowPass, nyquist)
	}
	if highPass > 0 && lowPass > 0 && highPass >= lowPass {
		return nil, fmt.Errorf("high-pass cutoff %g Hz must be below low-pass cutoff %g Hz", highPass, lowPass)
	}

	return &ZeroPhase{
		sampleRate: sampleRate,
		highPass:   highPass,
		lowPass:    lowPass,
	}, nil
}

// Enabled reports whether at least one filter edge is active.
func (zp *ZeroPhase) Enabled() bool {
	return zp.highPass > 0 || zp.lowPass > 0
}

// Apply filters a single channel and returns a new slice. The input is
// never modified and the sample count is preserved.
func (zp *ZeroPhase) Apply(signal []float64) []float64 {
	out := make([]float64, len(signal))
	copy(out, signal)

	if len(signal) == 0 || !zp.Enabled() {
		return out
	}

	if zp.highPass > 0 {
		out = filtFilt(NewHighPass(zp.sampleRate, zp.highPass), out)
	}
	if zp.lowPass > 0 {
		out = filtFilt(NewLowPass(zp.sampleRate, zp.lowPass), out)
	}

	return out
}

// ApplySegmented filters each contiguous region between boundary
// sample positions independently, so no filter state carries across a
// recording discontinuity. Boundaries outside (0, len) are ignored.
func (zp *ZeroPhase) ApplySegmented(signal []float64, boundaries []int) []float64 {
	if len(boundaries) == 0 {
		return zp.Apply(signal)
	}

	cuts := make([]int, 0, len(boundaries))
	for _, b := range boundaries {
		if b > 0 && b < len(signal) {
			cuts = append(cuts, b)
		}
	}
	sort.Ints(cuts)

	out := make([]float64, 0, len(signal))
	start := 0
	for _, cut := range cuts {
		if cut == start {
			continue
		}
		out = append(out, zp.Apply(signal[start:cut])...)
		start = cut
	}
	out = append(out, zp.Apply(signal[start:])...)

	return out
}

// filtFilt runs one section forward then backward over the signal,
// mirroring edgePad samples on each end to tame edge transients.
func filtFilt(section *Biquad, signal []float64) []float64 {
	n := len(signal)
	if n < 2 {
		return signal
	}

	pad := edgePad
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i >= 1; i-- {
		ext = append(ext, 2*signal[0]-signal[i])
	}
	ext = append(ext, signal...)
	for i := 1; i <= pad; i++ {
		ext = append(ext, 2*signal[n-1]-signal[n-1-i])
	}

	// Forward pass
	section.Prime(ext[0])
	for i := range ext {
		ext[i] = section.Process(ext[i])
	}

	// Backward pass
	section.Prime(ext[len(ext)-1])
	for i := len(ext) - 1; i >= 0; i-- {
		ext[i] = section.Process(ext[i])
	}

	return ext[pad : pad+n]
}
