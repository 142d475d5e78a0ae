package spectral

import (
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// LineNoiseMeasure quantifies mains interference per channel as the
// ratio of spectral power in a narrow band around the line frequency
// (50 or 60 Hz) to the broadband power of the channel. Values well
// above 1 indicate a channel dominated by line noise.
type LineNoiseMeasure struct {
	sampleRate float64
	lineFreq   float64
	bandwidth  float64
}

// NewLineNoiseMeasure creates a line-noise measure for the given
// sampling rate and line frequency. The measurement band spans
// lineFreq +/- 1 Hz.
func NewLineNoiseMeasure(sampleRate, lineFreq float64) (*LineNoiseMeasure, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if lineFreq <= 0 || lineFreq >= sampleRate/2 {
		return nil, fmt.Errorf("line frequency %g Hz must lie below Nyquist (%g Hz)", lineFreq, sampleRate/2)
	}

	return &LineNoiseMeasure{
		sampleRate: sampleRate,
		lineFreq:   lineFreq,
		bandwidth:  1.0,
	}, nil
}

// Ratio computes the line-band to broadband power ratio for one
// channel. Returns 0 for empty or silent channels.
func (m *LineNoiseMeasure) Ratio(signal []float64) float64 {
	if len(signal) < 2 {
		return 0.0
	}

	// mjibson/go-dsp handles all sizes efficiently, including non-power-of-2
	spectrum := fft.FFTReal(signal)

	n := len(signal)
	binWidth := m.sampleRate / float64(n)
	half := n / 2

	lowBin := int((m.lineFreq - m.bandwidth) / binWidth)
	highBin := int((m.lineFreq+m.bandwidth)/binWidth) + 1
	if lowBin < 1 {
		lowBin = 1
	}
	if highBin > half {
		highBin = half
	}
	if lowBin >= highBin {
		return 0.0
	}

	linePower := 0.0
	totalPower := 0.0
	for bin := 1; bin <= half; bin++ {
		mag := cmplx.Abs(spectrum[bin])
		power := mag * mag
		totalPower += power
		if bin >= lowBin && bin < highBin {
			linePower += power
		}
	}

	if totalPower == 0.0 {
		return 0.0
	}

	lineBins := float64(highBin - lowBin)
	broadBins := float64(half)

	// Compare mean power per bin so the ratio is independent of band width
	return (linePower / lineBins) / (totalPower / broadBins)
}

// Measure computes the ratio for every channel of a channels-by-samples
// matrix.
func (m *LineNoiseMeasure) Measure(channels [][]float64) []float64 {
	ratios := make([]float64, len(channels))
	for i, channel := range channels {
		ratios[i] = m.Ratio(channel)
	}
	return ratios
}
