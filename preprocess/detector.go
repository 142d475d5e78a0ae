package preprocess

import (
	"fmt"
	"math"

	"github.com/cortexlab/eegclean/algorithms/filters"
	"github.com/cortexlab/eegclean/algorithms/stats"
)

// Statistic selects the per-window amplitude statistic.
type Statistic string

const (
	// StatisticSD uses the sample standard deviation per window
	StatisticSD Statistic = "sd"
	// StatisticRMS uses the root mean square per window
	StatisticRMS Statistic = "rms"
)

// DetectorConfig controls amplitude-based bad-channel and bad-segment
// detection.
type DetectorConfig struct {
	// Optional zero-phase filter in Hz applied to a working copy
	// before windowing; 0 disables an edge. Filtering never crosses a
	// boundary marker.
	HighPass float64 `json:"high_pass"`
	LowPass  float64 `json:"low_pass"`

	// UseZScore standardizes each channel over the whole recording
	// before windowing, which changes the meaning and magnitude of
	// Threshold
	UseZScore bool `json:"use_zscore"`

	// Statistic computed per channel per window
	Statistic Statistic `json:"statistic"`

	// WindowSeconds is the non-overlapping window length; the final
	// window absorbs any remainder samples
	WindowSeconds float64 `json:"window_seconds"`

	// Threshold marks a (channel, window) cell bad when its statistic
	// reaches it
	Threshold float64 `json:"threshold"`

	// ChannelFraction is retained for configuration compatibility
	// with earlier revisions and is validated but not consulted
	ChannelFraction float64 `json:"channel_fraction"`

	// SegmentFraction is the fraction of bad channels at which a
	// window becomes a bad segment
	SegmentFraction float64 `json:"segment_fraction"`

	// RejectBufferWindows expands each bad window this many windows
	// on both sides, merging overlaps
	RejectBufferWindows int `json:"reject_buffer_windows"`

	// ChannelBadFraction is the fraction of bad windows at which a
	// channel becomes a bad channel
	ChannelBadFraction float64 `json:"channel_bad_fraction"`
}

// DefaultDetectorConfig returns thresholds for raw scalp EEG
// amplitudes in microvolts.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Statistic:           StatisticSD,
		WindowSeconds:       1.0,
		Threshold:           25.0,
		ChannelFraction:     0.1,
		SegmentFraction:     0.25,
		RejectBufferWindows: 2,
		ChannelBadFraction:  0.1,
	}
}

// DefaultZScoreDetectorConfig returns thresholds for standardized
// amplitudes, where the threshold is in standard deviations.
func DefaultZScoreDetectorConfig() DetectorConfig {
	config := DefaultDetectorConfig()
	config.UseZScore = true
	config.Threshold = 3.0
	return config
}

// Validate checks the configuration before any computation runs.
func (c DetectorConfig) Validate() error {
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window length must be positive, got %g s", ErrInvalidConfig, c.WindowSeconds)
	}
	if c.Statistic != StatisticSD && c.Statistic != StatisticRMS {
		return fmt.Errorf("%w: unknown statistic %q", ErrInvalidConfig, c.Statistic)
	}
	for name, frac := range map[string]float64{
		"channel_fraction":     c.ChannelFraction,
		"segment_fraction":     c.SegmentFraction,
		"channel_bad_fraction": c.ChannelBadFraction,
	} {
		if frac < 0 || frac > 1 {
			return fmt.Errorf("%w: %s %g outside [0, 1]", ErrInvalidConfig, name, frac)
		}
	}
	if c.RejectBufferWindows < 0 {
		return fmt.Errorf("%w: reject buffer must be non-negative, got %d", ErrInvalidConfig, c.RejectBufferWindows)
	}
	if c.HighPass < 0 || c.LowPass < 0 {
		return fmt.Errorf("%w: filter cutoffs must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// Segment is a contiguous bad stretch of the recording. EndSample is
// exclusive.
type Segment struct {
	StartSample  int     `json:"start_sample"`
	EndSample    int     `json:"end_sample"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

// DetectionResult is the immutable outcome of one Detect call.
type DetectionResult struct {
	// BadChannels holds channel indices whose fraction of bad windows
	// reached ChannelBadFraction, ascending
	BadChannels []int `json:"bad_channels"`

	// BadSegments holds non-overlapping bad intervals, sorted
	// ascending, after buffer expansion and merge
	BadSegments []Segment `json:"bad_segments"`

	// ThresholdMatrix tags each (channel, window) cell: 0 OK, 1 the
	// window (post-buffer) or the channel is bad, 2 both
	ThresholdMatrix [][]int `json:"threshold_matrix"`

	// StatMatrix holds the per-window statistic; boundary-overlapping
	// windows carry NaN
	StatMatrix [][]float64 `json:"stat_matrix"`

	// WindowCount is the total number of windows including excluded
	// ones
	WindowCount int `json:"window_count"`

	// BadSeconds is the summed length of all bad segments
	BadSeconds float64 `json:"bad_seconds"`

	// BadPercent is bad samples over total samples, in percent
	BadPercent float64 `json:"bad_percent"`
}

// AmplitudeSegmentDetector finds artifact-laden channels and time
// segments by thresholding a windowed amplitude statistic.
//
// The signal is cut into non-overlapping windows and the chosen
// statistic (SD or RMS) is computed per channel per window. Windows
// overlapping a boundary marker are excluded from statistics and
// carried through an index map, never spliced in and out of the
// matrix. Cells at or above the threshold mark bad channels (by
// bad-window fraction) and bad windows (by bad-channel fraction); bad
// windows are expanded by a reject buffer and collapsed into sample
// intervals.
type AmplitudeSegmentDetector struct {
	config DetectorConfig
}

// NewAmplitudeSegmentDetector validates the configuration and creates
// the procedure. Fails fast with ErrInvalidConfig on a malformed
// config.
func NewAmplitudeSegmentDetector(config DetectorConfig) (*AmplitudeSegmentDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AmplitudeSegmentDetector{config: config}, nil
}

// Detect runs the detection against signal. The input matrix is never
// modified.
func (d *AmplitudeSegmentDetector) Detect(signal *SignalMatrix, markers []Marker) (*DetectionResult, error) {
	n := signal.Samples()
	channels := signal.Channels()

	windowSamples := int(math.Round(d.config.WindowSeconds * signal.SampleRate))
	if windowSamples < 1 {
		return nil, fmt.Errorf("%w: window of %g s is shorter than one sample at %g Hz",
			ErrInvalidConfig, d.config.WindowSeconds, signal.SampleRate)
	}

	windowCount := n / windowSamples
	if windowCount == 0 {
		windowCount = 1
	}
	windowStart := func(w int) int { return w * windowSamples }
	windowEnd := func(w int) int {
		if w == windowCount-1 {
			return n
		}
		return (w + 1) * windowSamples
	}

	boundaries := boundarySamples(markers, n)

	var zp *filters.ZeroPhase
	if d.config.HighPass > 0 || d.config.LowPass > 0 {
		var err error
		zp, err = filters.NewZeroPhase(signal.SampleRate, d.config.HighPass, d.config.LowPass)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	working := d.prepare(signal, zp, boundaries)

	// Windows overlapping a boundary are excluded from statistics;
	// the index map keeps their slots aligned for re-insertion
	excluded := make([]bool, windowCount)
	for _, b := range boundaries {
		w := b / windowSamples
		if w >= windowCount {
			w = windowCount - 1
		}
		excluded[w] = true
	}
	var validWindows []int
	for w := 0; w < windowCount; w++ {
		if !excluded[w] {
			validWindows = append(validWindows, w)
		}
	}

	statMatrix := make([][]float64, channels)
	for c := range working {
		statMatrix[c] = make([]float64, windowCount)
		for w := 0; w < windowCount; w++ {
			if excluded[w] {
				statMatrix[c][w] = math.NaN()
				continue
			}
			window := working[c][windowStart(w):windowEnd(w)]
			if d.config.Statistic == StatisticRMS {
				statMatrix[c][w] = stats.RMS(window)
			} else {
				statMatrix[c][w] = stats.StdDev(window)
			}
		}
	}

	// Threshold over valid windows only; NaN sentinels never reach
	// the comparison
	badCell := make([][]bool, channels)
	for c := range badCell {
		badCell[c] = make([]bool, len(validWindows))
		for j, w := range validWindows {
			stat := statMatrix[c][w]
			badCell[c][j] = !math.IsNaN(stat) && stat >= d.config.Threshold
		}
	}

	badChannel := make([]bool, channels)
	if len(validWindows) > 0 {
		for c := range badCell {
			count := 0
			for _, bad := range badCell[c] {
				if bad {
					count++
				}
			}
			fraction := float64(count) / float64(len(validWindows))
			badChannel[c] = count > 0 && fraction >= d.config.ChannelBadFraction
		}
	}

	// Re-insert excluded windows as not-bad placeholders at their
	// original indices
	badWindow := make([]bool, windowCount)
	for j, w := range validWindows {
		count := 0
		for c := range badCell {
			if badCell[c][j] {
				count++
			}
		}
		fraction := float64(count) / float64(channels)
		badWindow[w] = count > 0 && fraction >= d.config.SegmentFraction
	}

	expanded := expandWindows(badWindow, d.config.RejectBufferWindows)

	// Tri-level tags: one point for a bad window, one for a bad
	// channel, so 2 marks cells where both conditions hold
	thresholdMatrix := make([][]int, channels)
	for c := range thresholdMatrix {
		thresholdMatrix[c] = make([]int, windowCount)
		for w := 0; w < windowCount; w++ {
			if expanded[w] {
				thresholdMatrix[c][w]++
			}
			if badChannel[c] {
				thresholdMatrix[c][w]++
			}
		}
	}

	var badChannels []int
	for c, bad := range badChannel {
		if bad {
			badChannels = append(badChannels, c)
		}
	}

	var segments []Segment
	badSamples := 0
	runStart := -1
	for w := 0; w <= windowCount; w++ {
		if w < windowCount && expanded[w] {
			if runStart == -1 {
				runStart = w
			}
			continue
		}
		if runStart != -1 {
			start := windowStart(runStart)
			end := windowEnd(w - 1)
			segments = append(segments, Segment{
				StartSample:  start,
				EndSample:    end,
				StartSeconds: float64(start) / signal.SampleRate,
				EndSeconds:   float64(end) / signal.SampleRate,
			})
			badSamples += end - start
			runStart = -1
		}
	}

	badSeconds := float64(badSamples) / signal.SampleRate
	badPercent := 0.0
	if n > 0 {
		badPercent = 100.0 * float64(badSamples) / float64(n)
	}

	return &DetectionResult{
		BadChannels:     badChannels,
		BadSegments:     segments,
		ThresholdMatrix: thresholdMatrix,
		StatMatrix:      statMatrix,
		WindowCount:     windowCount,
		BadSeconds:      badSeconds,
		BadPercent:      badPercent,
	}, nil
}

// prepare builds the working copy: boundary-aware filtering, then
// optional per-channel standardization.
func (d *AmplitudeSegmentDetector) prepare(signal *SignalMatrix, zp *filters.ZeroPhase, boundaries []int) [][]float64 {
	working := make([][]float64, signal.Channels())

	for c, channel := range signal.Data {
		row := make([]float64, len(channel))
		copy(row, channel)
		if zp != nil {
			row = zp.ApplySegmented(row, boundaries)
		}
		if d.config.UseZScore {
			row = stats.ZScore(row)
		}
		working[c] = row
	}

	return working
}

// expandWindows widens every bad window by buffer slots on both sides,
// clipped to the matrix bounds. Overlapping expansions merge
// naturally.
func expandWindows(badWindow []bool, buffer int) []bool {
	expanded := make([]bool, len(badWindow))
	for w, bad := range badWindow {
		if !bad {
			continue
		}
		lo := w - buffer
		if lo < 0 {
			lo = 0
		}
		hi := w + buffer
		if hi > len(badWindow)-1 {
			hi = len(badWindow) - 1
		}
		for i := lo; i <= hi; i++ {
			expanded[i] = true
		}
	}
	return expanded
}
