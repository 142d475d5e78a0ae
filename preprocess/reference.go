package preprocess

import (
	"fmt"
	"math"

	"github.com/cortexlab/eegclean/algorithms/filters"
	"github.com/cortexlab/eegclean/algorithms/stats"
)

// ReferenceConfig controls the iterative robust average reference.
type ReferenceConfig struct {
	// Channels eligible to contribute to the reference (0-based)
	Channels []int `json:"channels"`

	// MaxIterations caps the exclusion loop. Reaching the cap is a
	// soft termination, not an error.
	MaxIterations int `json:"max_iterations"`

	// MaxSD flags noisy channels; the single worst offender is
	// excluded per iteration
	MaxSD float64 `json:"max_sd"`

	// MinSD flags flatlined channels; all offenders are excluded at
	// once
	MinSD float64 `json:"min_sd"`

	// Optional zero-phase evaluation filter in Hz, 0 disables an edge.
	// The filter shapes the exclusion statistics only and never
	// touches the returned signal.
	HighPass float64 `json:"high_pass"`
	LowPass  float64 `json:"low_pass"`
}

// DefaultReferenceConfig returns the standard exclusion thresholds for
// scalp EEG in microvolts.
func DefaultReferenceConfig(channels []int) ReferenceConfig {
	return ReferenceConfig{
		Channels:      channels,
		MaxIterations: 10,
		MaxSD:         75.0,
		MinSD:         1.0,
		HighPass:      1.0,
		LowPass:       40.0,
	}
}

// Validate checks the configuration before any computation runs.
func (c ReferenceConfig) Validate() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("%w: channel set is empty", ErrInvalidConfig)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d, need at least 1", ErrInvalidConfig, c.MaxIterations)
	}
	if c.MaxSD <= 0 {
		return fmt.Errorf("%w: max SD must be positive, got %g", ErrInvalidConfig, c.MaxSD)
	}
	if c.MinSD < 0 {
		return fmt.Errorf("%w: min SD must be non-negative, got %g", ErrInvalidConfig, c.MinSD)
	}
	if c.MinSD >= c.MaxSD {
		return fmt.Errorf("%w: min SD %g must be below max SD %g", ErrInvalidConfig, c.MinSD, c.MaxSD)
	}
	if c.HighPass < 0 || c.LowPass < 0 {
		return fmt.Errorf("%w: filter cutoffs must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// IterationResult reports the outcome of one Compute call.
type IterationResult struct {
	// ExcludedChannels holds original-signal indices, ascending
	ExcludedChannels []int `json:"excluded_channels"`

	// IterationsRun counts loop passes including the final
	// convergence check
	IterationsRun int `json:"iterations_run"`

	// Referenced is the original full-channel signal re-referenced to
	// the mean of the surviving channel set
	Referenced *SignalMatrix `json:"-"`
}

// IterativeReference computes a robust average reference by
// iteratively excluding outlier channels from the reference set.
//
// Each iteration evaluates per-channel standard deviation over a
// working copy (optionally band-pass filtered for evaluation only):
// flatlined channels below MinSD are all excluded at once, and of the
// channels above MaxSD only the single worst is excluded, avoiding
// over-exclusion in one step. The loop ends when an iteration excludes
// nothing or the iteration cap is reached. The returned signal is the
// unfiltered input re-referenced to the mean of the surviving set.
type IterativeReference struct {
	config ReferenceConfig
}

// NewIterativeReference validates the configuration and creates the
// procedure. Fails fast with ErrInvalidConfig on a malformed config.
func NewIterativeReference(config ReferenceConfig) (*IterativeReference, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &IterativeReference{config: config}, nil
}

// Compute runs the iterative exclusion loop against signal. The input
// matrix is never modified.
func (ir *IterativeReference) Compute(signal *SignalMatrix) (*IterationResult, error) {
	channels, err := normalizeChannelSet(ir.config.Channels, signal.Channels())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	samples := signal.Samples()

	// Working copy restricted to the reference set, average-referenced
	// over the full set to start
	working := make([][]float64, len(channels))
	for i, c := range channels {
		working[i] = make([]float64, samples)
		copy(working[i], signal.Data[c])
	}

	included := make([]bool, len(channels))
	for i := range included {
		included[i] = true
	}
	subtractAverage(working, included)

	// Evaluation filter is a scaffold for the statistics only; the
	// returned signal is built from the unfiltered input
	if ir.config.HighPass > 0 || ir.config.LowPass > 0 {
		zp, err := filters.NewZeroPhase(signal.SampleRate, ir.config.HighPass, ir.config.LowPass)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for i := range working {
			working[i] = zp.Apply(working[i])
		}
	}

	iterationsRun := 0
	for iteration := 1; iteration <= ir.config.MaxIterations; iteration++ {
		iterationsRun = iteration

		sds := make([]float64, len(channels))
		for i := range working {
			if included[i] {
				sds[i] = stats.StdDev(working[i])
			} else {
				sds[i] = math.NaN()
			}
		}

		var toExclude []int

		// Flatlined channels go all at once
		for i, sd := range sds {
			if included[i] && sd < ir.config.MinSD {
				toExclude = append(toExclude, i)
			}
		}

		// Of the noisy channels, only the worst one this iteration.
		// Ties break to the lowest channel index.
		worst := -1
		for i, sd := range sds {
			if !included[i] || math.IsNaN(sd) || sd <= ir.config.MaxSD {
				continue
			}
			if worst == -1 || sd > sds[worst] {
				worst = i
			}
		}
		if worst >= 0 {
			toExclude = append(toExclude, worst)
		}

		if len(toExclude) == 0 {
			break
		}

		for _, i := range toExclude {
			included[i] = false
		}

		if countTrue(included) == 0 {
			return nil, fmt.Errorf("all %d reference channels excluded after %d iterations", len(channels), iterationsRun)
		}

		subtractAverage(working, included)
	}

	// Re-reference the original full-channel signal against the mean
	// of the surviving subset
	referenced := signal.Clone()
	reference := make([]float64, samples)
	count := 0.0
	for i, c := range channels {
		if !included[i] {
			continue
		}
		for t, v := range signal.Data[c] {
			reference[t] += v
		}
		count++
	}
	for t := range reference {
		reference[t] /= count
	}
	for _, channel := range referenced.Data {
		for t := range channel {
			channel[t] -= reference[t]
		}
	}

	var excluded []int
	for i, c := range channels {
		if !included[i] {
			excluded = append(excluded, c)
		}
	}

	return &IterationResult{
		ExcludedChannels: excluded,
		IterationsRun:    iterationsRun,
		Referenced:       referenced,
	}, nil
}

// subtractAverage removes the per-sample mean of the included rows
// from every row.
func subtractAverage(working [][]float64, included []bool) {
	if len(working) == 0 {
		return
	}

	count := float64(countTrue(included))
	if count == 0 {
		return
	}

	samples := len(working[0])
	reference := make([]float64, samples)
	for i, row := range working {
		if !included[i] {
			continue
		}
		for t, v := range row {
			reference[t] += v
		}
	}

	for t := range reference {
		reference[t] /= count
	}
	for _, row := range working {
		for t := range row {
			row[t] -= reference[t]
		}
	}
}

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}
