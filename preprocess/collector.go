package preprocess

import (
	"github.com/cortexlab/eegclean/logging"
)

// FileRecord summarizes preprocessing of one recording.
type FileRecord struct {
	Name string `json:"name"`

	// Channels excluded from the robust reference
	ExcludedReference []int `json:"excluded_reference,omitempty"`

	// Channels flagged by the amplitude detector
	BadChannels []int `json:"bad_channels,omitempty"`

	BadSeconds float64 `json:"bad_seconds"`
	BadPercent float64 `json:"bad_percent"`

	// Error is set when the recording was skipped
	Error string `json:"error,omitempty"`
}

// CollectorSummary aggregates a batch run.
type CollectorSummary struct {
	Files           int     `json:"files"`
	Skipped         int     `json:"skipped"`
	TotalBadSeconds float64 `json:"total_bad_seconds"`
	TotalBadChans   int     `json:"total_bad_channels"`
}

// Collector gathers per-recording records for a batch run. The
// orchestrator owns the collector and passes it explicitly; there is
// no package-level accumulator. A recording that fails is recorded as
// skipped and the batch continues.
type Collector struct {
	records []FileRecord
	log     logging.Logger
}

// NewCollector creates an empty collector reporting through the global
// logger.
func NewCollector() *Collector {
	return &Collector{log: logging.GetGlobalLogger()}
}

// NewCollectorWithLogger creates an empty collector with an explicit
// logger.
func NewCollectorWithLogger(log logging.Logger) *Collector {
	if log == nil {
		log = &logging.NoOpLogger{}
	}
	return &Collector{log: log}
}

// Add records the outcome of one successfully processed recording.
func (c *Collector) Add(record FileRecord) {
	c.records = append(c.records, record)
	c.log.Info("recording processed", logging.Fields{
		"name":         record.Name,
		"bad_channels": len(record.BadChannels),
		"bad_seconds":  record.BadSeconds,
	})
}

// Skip records a recording that failed and was left out of the batch.
func (c *Collector) Skip(name string, err error) {
	c.records = append(c.records, FileRecord{Name: name, Error: err.Error()})
	c.log.Warn("recording skipped", logging.Fields{
		"name":  name,
		"error": err.Error(),
	})
}

// Records returns a copy of all records in insertion order.
func (c *Collector) Records() []FileRecord {
	out := make([]FileRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Summary aggregates the collected records.
func (c *Collector) Summary() CollectorSummary {
	summary := CollectorSummary{}
	for _, record := range c.records {
		summary.Files++
		if record.Error != "" {
			summary.Skipped++
			continue
		}
		summary.TotalBadSeconds += record.BadSeconds
		summary.TotalBadChans += len(record.BadChannels)
	}
	return summary
}
