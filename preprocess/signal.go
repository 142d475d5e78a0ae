package preprocess

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidConfig is wrapped by every configuration validation
// failure, so callers can test with errors.Is before retrying with a
// corrected configuration. Validation runs before any computation.
var ErrInvalidConfig = errors.New("invalid configuration")

// SignalMatrix is a dense channels-by-samples recording with a common
// sampling rate. Every channel holds the same number of samples. The
// preprocessing procedures never mutate a SignalMatrix in place; they
// return derived matrices or index sets.
type SignalMatrix struct {
	Data       [][]float64 `json:"-"`
	SampleRate float64     `json:"sample_rate"`
}

// NewSignalMatrix wraps channel data after validating that all
// channels share the same length and the sampling rate is positive.
func NewSignalMatrix(data [][]float64, sampleRate float64) (*SignalMatrix, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("signal matrix needs at least one channel")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}

	samples := len(data[0])
	for i, channel := range data {
		if len(channel) != samples {
			return nil, fmt.Errorf("channel %d has %d samples, expected %d", i, len(channel), samples)
		}
	}

	return &SignalMatrix{Data: data, SampleRate: sampleRate}, nil
}

// Channels returns the number of channels.
func (m *SignalMatrix) Channels() int {
	return len(m.Data)
}

// Samples returns the number of samples per channel.
func (m *SignalMatrix) Samples() int {
	if len(m.Data) == 0 {
		return 0
	}
	return len(m.Data[0])
}

// Seconds returns the recording length in seconds.
func (m *SignalMatrix) Seconds() float64 {
	return float64(m.Samples()) / m.SampleRate
}

// Clone deep-copies the matrix.
func (m *SignalMatrix) Clone() *SignalMatrix {
	data := make([][]float64, len(m.Data))
	for i, channel := range m.Data {
		data[i] = make([]float64, len(channel))
		copy(data[i], channel)
	}
	return &SignalMatrix{Data: data, SampleRate: m.SampleRate}
}

// BoundaryMarker is the event type denoting a recording discontinuity.
// Windows overlapping a boundary are excluded from statistics, and
// filtering never runs across one.
const BoundaryMarker = "boundary"

// Marker is an event at a sample position, as produced by the event
// import collaborator.
type Marker struct {
	Type   string `json:"type"`
	Sample int    `json:"sample"`
}

// boundarySamples extracts sorted, deduplicated boundary positions
// that fall inside the recording.
func boundarySamples(markers []Marker, samples int) []int {
	var positions []int
	for _, marker := range markers {
		if marker.Type != BoundaryMarker {
			continue
		}
		if marker.Sample < 0 || marker.Sample >= samples {
			continue
		}
		positions = append(positions, marker.Sample)
	}
	sort.Ints(positions)

	deduped := positions[:0]
	prev := -1
	for _, p := range positions {
		if p != prev {
			deduped = append(deduped, p)
			prev = p
		}
	}
	return deduped
}

// normalizeChannelSet sorts and deduplicates a channel index set and
// checks every index against the channel count.
func normalizeChannelSet(channels []int, total int) ([]int, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("channel set is empty")
	}

	set := make([]int, len(channels))
	copy(set, channels)
	sort.Ints(set)

	deduped := set[:0]
	prev := -1
	for _, c := range set {
		if c < 0 || c >= total {
			return nil, fmt.Errorf("channel index %d out of range [0, %d)", c, total)
		}
		if c != prev {
			deduped = append(deduped, c)
			prev = c
		}
	}
	return deduped, nil
}
