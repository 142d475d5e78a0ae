package preprocess_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/eegclean/preprocess"
)

// zeroMatrix builds a channels-by-samples all-zero recording.
func zeroMatrix(t *testing.T, channels, samples int, rate float64) *preprocess.SignalMatrix {
	t.Helper()
	data := make([][]float64, channels)
	for i := range data {
		data[i] = make([]float64, samples)
	}
	signal, err := preprocess.NewSignalMatrix(data, rate)
	require.NoError(t, err)
	return signal
}

// spike fills [start, end) of a channel with an alternating +/-
// amplitude square wave, giving the window an SD and RMS close to
// amplitude.
func spike(channel []float64, start, end int, amplitude float64) {
	for i := start; i < end; i++ {
		if i%2 == 0 {
			channel[i] = amplitude
		} else {
			channel[i] = -amplitude
		}
	}
}

func detectorConfig() preprocess.DetectorConfig {
	return preprocess.DetectorConfig{
		Statistic:           preprocess.StatisticSD,
		WindowSeconds:       10,
		Threshold:           25,
		ChannelFraction:     0.1,
		SegmentFraction:     0.25,
		RejectBufferWindows: 1,
		ChannelBadFraction:  0.1,
	}
}

func TestDetectorConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*preprocess.DetectorConfig)
	}{
		{"zero window", func(c *preprocess.DetectorConfig) { c.WindowSeconds = 0 }},
		{"negative window", func(c *preprocess.DetectorConfig) { c.WindowSeconds = -5 }},
		{"unknown statistic", func(c *preprocess.DetectorConfig) { c.Statistic = "median" }},
		{"channel fraction above one", func(c *preprocess.DetectorConfig) { c.ChannelFraction = 1.5 }},
		{"negative segment fraction", func(c *preprocess.DetectorConfig) { c.SegmentFraction = -0.1 }},
		{"channel bad fraction above one", func(c *preprocess.DetectorConfig) { c.ChannelBadFraction = 2 }},
		{"negative buffer", func(c *preprocess.DetectorConfig) { c.RejectBufferWindows = -1 }},
		{"negative cutoff", func(c *preprocess.DetectorConfig) { c.LowPass = -10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := detectorConfig()
			tt.mutate(&config)
			_, err := preprocess.NewAmplitudeSegmentDetector(config)
			require.Error(t, err)
			assert.True(t, errors.Is(err, preprocess.ErrInvalidConfig))
		})
	}

	_, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	assert.NoError(t, err)
}

// A silent recording yields six clean windows and an empty result.
func TestAllZeroSignalIsClean(t *testing.T) {
	signal := zeroMatrix(t, 10, 6000, 100)

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, result.WindowCount)
	assert.Empty(t, result.BadChannels)
	assert.Empty(t, result.BadSegments)
	assert.Equal(t, 0.0, result.BadSeconds)
	assert.Equal(t, 0.0, result.BadPercent)

	for c := range result.StatMatrix {
		for w := range result.StatMatrix[c] {
			assert.Equal(t, 0.0, result.StatMatrix[c][w])
			assert.Equal(t, 0, result.ThresholdMatrix[c][w])
		}
	}
}

// One channel spiking in a single window flags the channel and, with a
// one-window buffer, a three-window segment around the spike.
func TestSingleChannelSpikeWithBuffer(t *testing.T) {
	signal := zeroMatrix(t, 4, 6000, 100)
	spike(signal.Data[0], 2000, 3000, 100)

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, result.BadChannels)

	require.Len(t, result.BadSegments, 1)
	segment := result.BadSegments[0]
	assert.Equal(t, 1000, segment.StartSample)
	assert.Equal(t, 4000, segment.EndSample)
	assert.InDelta(t, 10.0, segment.StartSeconds, 1e-12)
	assert.InDelta(t, 40.0, segment.EndSeconds, 1e-12)

	assert.InDelta(t, 30.0, result.BadSeconds, 1e-12)
	assert.InDelta(t, 50.0, result.BadPercent, 1e-12)

	// Tri-level tags: bad channel row scores 1 everywhere, 2 inside
	// the buffered bad windows
	assert.Equal(t, 2, result.ThresholdMatrix[0][2])
	assert.Equal(t, 2, result.ThresholdMatrix[0][1])
	assert.Equal(t, 2, result.ThresholdMatrix[0][3])
	assert.Equal(t, 1, result.ThresholdMatrix[0][0])
	assert.Equal(t, 1, result.ThresholdMatrix[1][2])
	assert.Equal(t, 0, result.ThresholdMatrix[1][0])
}

func TestThresholdMatrixValuesAreTriLevel(t *testing.T) {
	signal := zeroMatrix(t, 4, 6000, 100)
	spike(signal.Data[0], 2000, 3000, 100)
	spike(signal.Data[1], 4500, 5000, 200)

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, nil)
	require.NoError(t, err)

	for c := range result.ThresholdMatrix {
		for w, tag := range result.ThresholdMatrix[c] {
			assert.Contains(t, []int{0, 1, 2}, tag, "channel %d window %d", c, w)
		}
	}
}

// Overlapping buffer expansions merge into one interval, and intervals
// stay sorted and disjoint.
func TestBufferExpansionsMerge(t *testing.T) {
	signal := zeroMatrix(t, 4, 6000, 100)
	spike(signal.Data[0], 1000, 2000, 100)
	spike(signal.Data[1], 3000, 4000, 100)

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, nil)
	require.NoError(t, err)

	// Windows 1 and 3 bad, each expanded by one window: 0..4 merged
	require.Len(t, result.BadSegments, 1)
	assert.Equal(t, 0, result.BadSegments[0].StartSample)
	assert.Equal(t, 5000, result.BadSegments[0].EndSample)

	prevEnd := -1
	for _, segment := range result.BadSegments {
		assert.Greater(t, segment.StartSample, prevEnd)
		assert.Greater(t, segment.EndSample, segment.StartSample)
		prevEnd = segment.EndSample
	}
}

// Windows overlapping a boundary marker are excluded from statistics
// and never flagged by the initial pass.
func TestBoundaryWindowExcluded(t *testing.T) {
	signal := zeroMatrix(t, 4, 6000, 100)
	spike(signal.Data[0], 2000, 3000, 100)

	markers := []preprocess.Marker{
		{Type: "stimulus", Sample: 100},
		{Type: preprocess.BoundaryMarker, Sample: 2500},
	}

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, markers)
	require.NoError(t, err)

	for c := range result.StatMatrix {
		assert.True(t, math.IsNaN(result.StatMatrix[c][2]), "boundary window must carry the sentinel")
	}
	assert.Empty(t, result.BadChannels)
	assert.Empty(t, result.BadSegments)
	assert.Equal(t, 0.0, result.BadSeconds)
}

// Buffer expansion may spill into a boundary window even though the
// window itself never produces statistics.
func TestBufferExpansionReachesBoundaryWindow(t *testing.T) {
	signal := zeroMatrix(t, 4, 6000, 100)
	spike(signal.Data[0], 2000, 3000, 100)

	markers := []preprocess.Marker{
		{Type: preprocess.BoundaryMarker, Sample: 1500},
	}

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, markers)
	require.NoError(t, err)

	for c := range result.StatMatrix {
		assert.True(t, math.IsNaN(result.StatMatrix[c][1]))
	}

	// Window 2 is bad; the buffer reaches the excluded window 1
	require.Len(t, result.BadSegments, 1)
	assert.Equal(t, 1000, result.BadSegments[0].StartSample)
	assert.Equal(t, 4000, result.BadSegments[0].EndSample)
}

// The final window absorbs remainder samples instead of being dropped.
func TestFinalWindowAbsorbsRemainder(t *testing.T) {
	signal := zeroMatrix(t, 4, 6500, 100)
	spike(signal.Data[0], 6000, 6500, 100)

	config := detectorConfig()
	config.RejectBufferWindows = 0
	detector, err := preprocess.NewAmplitudeSegmentDetector(config)
	require.NoError(t, err)

	result, err := detector.Detect(signal, nil)
	require.NoError(t, err)

	assert.Equal(t, 6, result.WindowCount)
	require.Len(t, result.BadSegments, 1)
	assert.Equal(t, 5000, result.BadSegments[0].StartSample)
	assert.Equal(t, 6500, result.BadSegments[0].EndSample)
}

// RMS catches a constant offset that SD cannot see.
func TestRMSStatisticCatchesConstantOffset(t *testing.T) {
	build := func() *preprocess.SignalMatrix {
		signal := zeroMatrix(t, 4, 6000, 100)
		for i := 2000; i < 3000; i++ {
			signal.Data[0][i] = 50
		}
		return signal
	}

	sdConfig := detectorConfig()
	sdDetector, err := preprocess.NewAmplitudeSegmentDetector(sdConfig)
	require.NoError(t, err)

	sdResult, err := sdDetector.Detect(build(), nil)
	require.NoError(t, err)
	assert.Empty(t, sdResult.BadChannels)
	assert.Empty(t, sdResult.BadSegments)

	rmsConfig := detectorConfig()
	rmsConfig.Statistic = preprocess.StatisticRMS
	rmsDetector, err := preprocess.NewAmplitudeSegmentDetector(rmsConfig)
	require.NoError(t, err)

	rmsResult, err := rmsDetector.Detect(build(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, rmsResult.BadChannels)
	require.Len(t, rmsResult.BadSegments, 1)
}

// Standardization changes the threshold semantics to standard
// deviations.
func TestZScoreThresholding(t *testing.T) {
	signal := zeroMatrix(t, 2, 6000, 100)
	spike(signal.Data[0], 2000, 3000, 100)

	config := detectorConfig()
	config.UseZScore = true
	config.Threshold = 2
	config.SegmentFraction = 0.5
	config.RejectBufferWindows = 0

	detector, err := preprocess.NewAmplitudeSegmentDetector(config)
	require.NoError(t, err)

	result, err := detector.Detect(signal, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, result.BadChannels)
	require.Len(t, result.BadSegments, 1)
	assert.Equal(t, 2000, result.BadSegments[0].StartSample)
	assert.Equal(t, 3000, result.BadSegments[0].EndSample)
}

// A recording where every window overlaps a boundary yields an empty
// result, not an error.
func TestAllWindowsExcludedIsEmptyResult(t *testing.T) {
	signal := zeroMatrix(t, 3, 500, 100)
	spike(signal.Data[0], 0, 500, 100)

	markers := []preprocess.Marker{
		{Type: preprocess.BoundaryMarker, Sample: 250},
	}

	detector, err := preprocess.NewAmplitudeSegmentDetector(detectorConfig())
	require.NoError(t, err)

	result, err := detector.Detect(signal, markers)
	require.NoError(t, err)

	assert.Equal(t, 1, result.WindowCount)
	assert.Empty(t, result.BadChannels)
	assert.Empty(t, result.BadSegments)
	assert.Equal(t, 0.0, result.BadSeconds)
}

// Boundary-aware filtering must not bleed a discontinuity across the
// cut.
func TestDetectWithBandpassFilter(t *testing.T) {
	signal := zeroMatrix(t, 3, 6000, 100)
	for c := range signal.Data {
		for i := range signal.Data[c] {
			signal.Data[c][i] = 5 * math.Sin(2*math.Pi*10*float64(i)/100)
		}
	}
	// 10 Hz square wave, well inside the pass band
	for i := 2000; i < 3000; i++ {
		if (i/5)%2 == 0 {
			signal.Data[0][i] = 150
		} else {
			signal.Data[0][i] = -150
		}
	}

	config := detectorConfig()
	config.HighPass = 1
	config.LowPass = 40

	detector, err := preprocess.NewAmplitudeSegmentDetector(config)
	require.NoError(t, err)

	result, err := detector.Detect(signal, []preprocess.Marker{
		{Type: preprocess.BoundaryMarker, Sample: 4000},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, result.BadChannels)
	require.Len(t, result.BadSegments, 1)
	assert.Equal(t, 1000, result.BadSegments[0].StartSample)
	assert.Equal(t, 4000, result.BadSegments[0].EndSample)
}

func TestDetectorInputNeverMutated(t *testing.T) {
	signal := zeroMatrix(t, 2, 6000, 100)
	spike(signal.Data[0], 2000, 3000, 100)
	original := make([]float64, 6000)
	copy(original, signal.Data[0])

	config := detectorConfig()
	config.UseZScore = true
	config.HighPass = 1
	config.LowPass = 40
	config.SegmentFraction = 0.5

	detector, err := preprocess.NewAmplitudeSegmentDetector(config)
	require.NoError(t, err)

	_, err = detector.Detect(signal, nil)
	require.NoError(t, err)

	assert.Equal(t, original, signal.Data[0])
}
