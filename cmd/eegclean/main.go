package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OpenPSG/edf"
	"github.com/alecthomas/kong"

	"github.com/cortexlab/eegclean/algorithms/spectral"
	"github.com/cortexlab/eegclean/logging"
	"github.com/cortexlab/eegclean/preprocess"
)

var version = "0.1.0"

// CLI defines the command-line interface
type CLI struct {
	Version bool   `short:"v" help:"Show version information"`
	File    string `arg:"" name:"file" help:"EDF recording to analyse" type:"existingfile" optional:""`

	Rate float64 `help:"Sampling rate in Hz" default:"250"`

	HighPass float64 `help:"High-pass cutoff in Hz, 0 disables" default:"1"`
	LowPass  float64 `help:"Low-pass cutoff in Hz, 0 disables" default:"40"`

	MaxIterations int     `help:"Reference exclusion iteration cap" default:"10"`
	MaxSD         float64 `help:"Reference noisy-channel SD ceiling in uV" default:"75"`
	MinSD         float64 `help:"Reference flatline SD floor in uV" default:"1"`

	Window    float64 `help:"Detector window length in seconds" default:"1"`
	Threshold float64 `help:"Detector amplitude threshold" default:"25"`
	ZScore    bool    `help:"Standardize channels before thresholding"`
	RMS       bool    `help:"Use RMS instead of standard deviation"`
	Buffer    int     `help:"Windows of buffer around each bad segment" default:"2"`

	LineFreq float64 `help:"Mains frequency in Hz for the line-noise report" default:"50"`

	Quiet bool `short:"q" help:"Suppress progress logging"`
}

// report is the structured output rendered as JSON on stdout.
type report struct {
	File       string                      `json:"file"`
	Channels   int                         `json:"channels"`
	Samples    int                         `json:"samples"`
	SampleRate float64                     `json:"sample_rate"`
	Reference  *preprocess.IterationResult `json:"reference"`
	Detection  *preprocess.DetectionResult `json:"detection"`
	LineNoise  []float64                   `json:"line_noise_ratio"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("eegclean"),
		kong.Description("Robust rereferencing and amplitude artifact detection for EEG recordings"),
		kong.UsageOnError(),
	)

	if cli.Version {
		fmt.Printf("eegclean %s\n", version)
		os.Exit(0)
	}

	if cli.File == "" {
		fmt.Fprintln(os.Stderr, "no input file specified")
		ctx.PrintUsage(false)
		os.Exit(1)
	}

	if cli.Quiet {
		logging.SetGlobalLogger(&logging.NoOpLogger{})
	}

	if err := run(cli); err != nil {
		logging.Error(err, "processing failed", logging.Fields{"file": cli.File})
		os.Exit(1)
	}
}

func run(cli *CLI) error {
	signal, err := loadEDF(cli.File, cli.Rate)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cli.File, err)
	}

	log := logging.WithFields(logging.Fields{"file": cli.File})
	log.Info("recording loaded", logging.Fields{
		"channels": signal.Channels(),
		"samples":  signal.Samples(),
		"seconds":  signal.Seconds(),
	})

	allChannels := make([]int, signal.Channels())
	for i := range allChannels {
		allChannels[i] = i
	}

	refConfig := preprocess.ReferenceConfig{
		Channels:      allChannels,
		MaxIterations: cli.MaxIterations,
		MaxSD:         cli.MaxSD,
		MinSD:         cli.MinSD,
		HighPass:      cli.HighPass,
		LowPass:       cli.LowPass,
	}
	reference, err := preprocess.NewIterativeReference(refConfig)
	if err != nil {
		return err
	}
	refResult, err := reference.Compute(signal)
	if err != nil {
		return fmt.Errorf("rereferencing: %w", err)
	}
	log.Info("rereferenced", logging.Fields{
		"excluded":   refResult.ExcludedChannels,
		"iterations": refResult.IterationsRun,
	})

	detConfig := preprocess.DefaultDetectorConfig()
	detConfig.HighPass = cli.HighPass
	detConfig.LowPass = cli.LowPass
	detConfig.UseZScore = cli.ZScore
	detConfig.WindowSeconds = cli.Window
	detConfig.Threshold = cli.Threshold
	detConfig.RejectBufferWindows = cli.Buffer
	if cli.RMS {
		detConfig.Statistic = preprocess.StatisticRMS
	}

	detector, err := preprocess.NewAmplitudeSegmentDetector(detConfig)
	if err != nil {
		return err
	}
	detection, err := detector.Detect(refResult.Referenced, nil)
	if err != nil {
		return fmt.Errorf("artifact detection: %w", err)
	}
	log.Info("artifacts detected", logging.Fields{
		"bad_channels": detection.BadChannels,
		"bad_seconds":  detection.BadSeconds,
		"bad_percent":  detection.BadPercent,
	})

	lineNoise, err := spectral.NewLineNoiseMeasure(signal.SampleRate, cli.LineFreq)
	if err != nil {
		return err
	}

	out := report{
		File:       cli.File,
		Channels:   signal.Channels(),
		Samples:    signal.Samples(),
		SampleRate: signal.SampleRate,
		Reference:  refResult,
		Detection:  detection,
		LineNoise:  lineNoise.Measure(signal.Data),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

// loadEDF reads every signal of an EDF file into a channels-by-samples
// matrix.
func loadEDF(path string, rate float64) (*preprocess.SignalMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := edf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("parsing EDF header: %w", err)
	}

	var data [][]float64
	for index := 0; ; index++ {
		sr, err := reader.Signal(index)
		if err != nil {
			// Signal index past the last channel
			break
		}
		channel, err := readAll(sr)
		if err != nil {
			return nil, fmt.Errorf("reading signal %d: %w", index, err)
		}
		data = append(data, channel)
	}

	if len(data) == 0 {
		return nil, errors.New("no signals in file")
	}

	// EDF channels may be sampled at different rates; truncate to the
	// shortest so the matrix stays rectangular
	shortest := len(data[0])
	for _, channel := range data {
		if len(channel) < shortest {
			shortest = len(channel)
		}
	}
	for i := range data {
		data[i] = data[i][:shortest]
	}

	return preprocess.NewSignalMatrix(data, rate)
}

// readAll drains a signal reader into a slice.
func readAll(sr *edf.SignalReader) ([]float64, error) {
	var out []float64
	buf := make([]float64, 4096)
	for {
		n, err := sr.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
