package pallium

import (
	"fmt"
	"math"
	"time"
)

// Detector is the streaming anomaly-detection engine. Each Compute call
// pipes one binary input vector through the spatial pooler and temporal
// memory and reduces the prediction-miss signal to a bounded score.
//
// A Detector owns all of its learned state. Compute must be called
// sequentially by a single consumer; run one Detector per monitored stream
// for parallelism. No call blocks on I/O.
type Detector struct {
	cfg Config

	sp *SpatialPooler
	tm *TemporalMemory

	window *rollingWindow
	meter  *throughputMeter

	totalProcessed uint64
	totalAnomalies uint64
}

// Metrics is a point-in-time snapshot of detector statistics.
type Metrics struct {
	// Throughput is processed vectors per second over a sliding
	// wall-clock window.
	Throughput float64 `json:"throughput"`
	// AverageAnomaly is the mean score over the rolling window.
	AverageAnomaly float64 `json:"average_anomaly"`
	// RollingMean and RollingStdDev describe the rolling score window.
	RollingMean   float64 `json:"rolling_mean"`
	RollingStdDev float64 `json:"rolling_stddev"`
	// AnomalyRate is the percentage of window scores at or above the
	// static threshold.
	AnomalyRate float64 `json:"anomaly_rate"`
	// HistorySize is the current rolling window fill.
	HistorySize int `json:"history_size"`

	TotalProcessed uint64 `json:"total_processed"`
	TotalAnomalies uint64 `json:"total_anomalies"`
}

// Classification describes how a score should be treated.
type Classification struct {
	Anomalous bool   `json:"anomalous"`
	Severity  string `json:"severity"`
	// Kind distinguishes the shape of the anomaly: "spike" for a sudden
	// prediction collapse, "drift" when the rolling baseline itself has
	// risen, "outlier" for a statistical deviation from a quiet baseline.
	Kind string `json:"kind"`
}

// New creates a detector from the given configuration.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sp, err := NewSpatialPooler(cfg)
	if err != nil {
		return nil, err
	}
	tm, err := NewTemporalMemory(cfg)
	if err != nil {
		return nil, err
	}

	return &Detector{
		cfg:    cfg,
		sp:     sp,
		tm:     tm,
		window: newRollingWindow(cfg.RollingWindowSize),
		meter:  newThroughputMeter(cfg.ThroughputWindow, time.Now),
	}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// Compute processes one input vector and returns its anomaly score in
// [0, 1], where 0 means fully predicted and 1 means fully unexpected.
// Invalid input is rejected before any state mutation. With learn disabled
// the learned state is left untouched; sequence state still advances.
func (d *Detector) Compute(input []byte, learn bool) (float64, error) {
	activeColumns, err := d.sp.Compute(input, learn)
	if err != nil {
		return 0, err
	}

	predicted := d.tm.Compute(activeColumns, learn)
	score := 1 - predicted

	if math.IsNaN(score) || score < 0 || score > 1 {
		return 0, newCorruptionError("detector",
			fmt.Sprintf("anomaly score %v outside [0,1]", score))
	}

	d.window.Push(score)
	d.meter.Mark()
	d.totalProcessed++
	if d.IsAnomalous(score) {
		d.totalAnomalies++
	}
	return score, nil
}

// IsAnomalous reports whether a score should be flagged. A score at or
// above the static threshold always flags. Once the rolling window is full
// a score more than K standard deviations above the rolling mean also
// flags; before that the dynamic threshold stays disabled so a cold-start
// window cannot produce spurious baselines.
func (d *Detector) IsAnomalous(score float64) bool {
	if score >= d.cfg.AnomalyStaticThreshold {
		return true
	}
	if !d.window.Full() {
		return false
	}
	return score > d.window.Mean()+d.cfg.AnomalyDynamicK*d.window.StdDev()
}

// Classify maps a score to a classification with a severity band and a
// kind derived from the rolling baseline.
func (d *Detector) Classify(score float64) Classification {
	if !d.IsAnomalous(score) {
		return Classification{Severity: "none", Kind: "none"}
	}

	severity := "info"
	if score >= 0.5 {
		severity = "warning"
	}
	if score >= 0.9 {
		severity = "critical"
	}

	kind := "outlier"
	switch {
	case d.window.Full() && d.window.Mean() >= d.cfg.AnomalyStaticThreshold/2:
		// The baseline itself is elevated: sustained sequence novelty.
		kind = "drift"
	case score >= d.cfg.AnomalyStaticThreshold:
		kind = "spike"
	}
	return Classification{Anomalous: true, Severity: severity, Kind: kind}
}

// Metrics returns current detector statistics.
func (d *Detector) Metrics() Metrics {
	rate := 0.0
	if d.window.Len() > 0 {
		rate = float64(d.window.CountAtOrAbove(d.cfg.AnomalyStaticThreshold)) /
			float64(d.window.Len()) * 100
	}
	return Metrics{
		Throughput:     d.meter.Rate(),
		AverageAnomaly: d.window.Mean(),
		RollingMean:    d.window.Mean(),
		RollingStdDev:  d.window.StdDev(),
		AnomalyRate:    rate,
		HistorySize:    d.window.Len(),
		TotalProcessed: d.totalProcessed,
		TotalAnomalies: d.totalAnomalies,
	}
}

// Reset restores the detector to its post-construction state: both stages
// are rebuilt from the original seed and the rolling window and counters
// are cleared. A reset detector is indistinguishable from a fresh one with
// the same configuration.
func (d *Detector) Reset() {
	d.sp.Reset()
	d.tm.Reset()
	d.window.Reset()
	d.meter.Reset()
	d.totalProcessed = 0
	d.totalAnomalies = 0
}
