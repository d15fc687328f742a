package pallium

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines engine configuration. All fields have working defaults;
// construct a baseline with DefaultConfig and override as needed.
type Config struct {
	// InputSize is the fixed width of every input vector.
	InputSize int `yaml:"input_size"`

	// ColumnCount is the number of spatial pooler columns.
	ColumnCount int `yaml:"column_count"`

	// Sparsity is the target fraction of columns active per step.
	Sparsity float64 `yaml:"sparsity"`

	// ConnectedPermanenceThreshold is the permanence above which a synapse
	// counts as connected.
	ConnectedPermanenceThreshold float64 `yaml:"connected_permanence_threshold"`

	// PermanenceIncrement is added to reinforced synapses during learning.
	PermanenceIncrement float64 `yaml:"permanence_increment"`

	// PermanenceDecrement is subtracted from non-reinforced synapses.
	PermanenceDecrement float64 `yaml:"permanence_decrement"`

	// PredictedSegmentDecrement punishes segments whose predictions were
	// not confirmed by the next step. Keep it well below
	// PermanenceDecrement or sequences un-learn faster than they learn.
	PredictedSegmentDecrement float64 `yaml:"predicted_segment_decrement"`

	// BoostStrength scales homeostatic boosting. 0 disables boosting.
	BoostStrength float64 `yaml:"boost_strength"`

	// PotentialFraction is the fraction of input bits in each column's
	// potential pool.
	PotentialFraction float64 `yaml:"potential_fraction"`

	// DutyCyclePeriod is the effective window, in steps, of the activation
	// duty-cycle moving average.
	DutyCyclePeriod int `yaml:"duty_cycle_period"`

	// MaxOvershoot caps inhibition ties: at most MaxOvershoot times the
	// target winner count may activate in one step.
	MaxOvershoot float64 `yaml:"max_overshoot"`

	// CellsPerColumn is the number of temporal memory cells per column.
	CellsPerColumn int `yaml:"cells_per_column"`

	// ActivationThreshold is the connected active synapse count at which a
	// segment predicts its cell.
	ActivationThreshold int `yaml:"activation_threshold"`

	// LearningThreshold is the potential active synapse count at which a
	// segment is considered matching for reinforcement. Must not exceed
	// ActivationThreshold.
	LearningThreshold int `yaml:"learning_threshold"`

	// MaxNewSynapsesPerSegment bounds synapse growth per learning step.
	MaxNewSynapsesPerSegment int `yaml:"max_new_synapses_per_segment"`

	// RollingWindowSize is the capacity of the anomaly score window.
	RollingWindowSize int `yaml:"rolling_window_size"`

	// AnomalyStaticThreshold flags scores at or above this value.
	AnomalyStaticThreshold float64 `yaml:"anomaly_static_threshold"`

	// AnomalyDynamicK flags scores above rollingMean + K*rollingStdDev once
	// the rolling window is full.
	AnomalyDynamicK float64 `yaml:"anomaly_dynamic_k"`

	// ThroughputWindow is the wall-clock window for the throughput metric.
	ThroughputWindow time.Duration `yaml:"throughput_window"`

	// Seed drives all randomized initialization and sampling. The same
	// seed and configuration always produce the same engine.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns an engine configuration with working defaults for a
// 2048-bit input encoder.
func DefaultConfig() Config {
	return Config{
		InputSize:                    2048,
		ColumnCount:                  2048,
		Sparsity:                     0.02,
		ConnectedPermanenceThreshold: 0.5,
		PermanenceIncrement:          0.05,
		PermanenceDecrement:          0.01,
		PredictedSegmentDecrement:    0.002,
		BoostStrength:                2.0,
		PotentialFraction:            0.5,
		DutyCyclePeriod:              1000,
		MaxOvershoot:                 2.0,
		CellsPerColumn:               32,
		ActivationThreshold:          13,
		LearningThreshold:            10,
		MaxNewSynapsesPerSegment:     20,
		RollingWindowSize:            100,
		AnomalyStaticThreshold:       0.7,
		AnomalyDynamicK:              3.0,
		ThroughputWindow:             10 * time.Second,
		Seed:                         42,
	}
}

// activeColumnTarget is the rounded winner count implied by the config.
func (c Config) activeColumnTarget() int {
	return int(math.Round(c.Sparsity * float64(c.ColumnCount)))
}

// Validate checks the configuration. It returns a ConfigError describing the
// first offending field, or nil.
func (c Config) Validate() error {
	if c.InputSize <= 0 {
		return newConfigError("input_size", "must be positive")
	}
	if c.ColumnCount <= 0 {
		return newConfigError("column_count", "must be positive")
	}
	if c.Sparsity <= 0 || c.Sparsity >= 1 {
		return newConfigError("sparsity", "must be in (0, 1)")
	}

	// The winner count must be a near-integral number of columns. A target
	// that rounds away by more than a quarter column silently distorts the
	// configured sparsity, so it is rejected instead.
	exact := c.Sparsity * float64(c.ColumnCount)
	target := math.Round(exact)
	if target < 1 {
		return newConfigError("sparsity", "sparsity*column_count must be at least 1")
	}
	if math.Abs(exact-target)/exact > 0.25 {
		return newConfigError("sparsity",
			fmt.Sprintf("sparsity*column_count = %.4f is not close to a whole column count", exact))
	}

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"connected_permanence_threshold", c.ConnectedPermanenceThreshold},
		{"permanence_increment", c.PermanenceIncrement},
		{"permanence_decrement", c.PermanenceDecrement},
		{"predicted_segment_decrement", c.PredictedSegmentDecrement},
		{"anomaly_static_threshold", c.AnomalyStaticThreshold},
	} {
		if f.value < 0 || f.value > 1 || math.IsNaN(f.value) {
			return newConfigError(f.name, "must be in [0, 1]")
		}
	}
	if c.BoostStrength < 0 || math.IsNaN(c.BoostStrength) || math.IsInf(c.BoostStrength, 0) {
		return newConfigError("boost_strength", "must be non-negative and finite")
	}
	if c.PotentialFraction <= 0 || c.PotentialFraction > 1 {
		return newConfigError("potential_fraction", "must be in (0, 1]")
	}
	if c.DutyCyclePeriod < 1 {
		return newConfigError("duty_cycle_period", "must be at least 1")
	}
	if c.MaxOvershoot < 1 {
		return newConfigError("max_overshoot", "must be at least 1")
	}
	if c.CellsPerColumn < 1 {
		return newConfigError("cells_per_column", "must be at least 1")
	}
	if c.ActivationThreshold < 1 {
		return newConfigError("activation_threshold", "must be at least 1")
	}
	if c.LearningThreshold < 1 {
		return newConfigError("learning_threshold", "must be at least 1")
	}
	if c.LearningThreshold > c.ActivationThreshold {
		return newConfigError("learning_threshold", "must not exceed activation_threshold")
	}
	if c.MaxNewSynapsesPerSegment < 1 {
		return newConfigError("max_new_synapses_per_segment", "must be at least 1")
	}
	if c.MaxNewSynapsesPerSegment < c.ActivationThreshold {
		return newConfigError("max_new_synapses_per_segment",
			"must be at least activation_threshold or grown segments can never predict")
	}
	if c.RollingWindowSize < 2 {
		return newConfigError("rolling_window_size", "must be at least 2")
	}
	if c.AnomalyDynamicK < 0 {
		return newConfigError("anomaly_dynamic_k", "must be non-negative")
	}
	if c.ThroughputWindow <= 0 {
		return newConfigError("throughput_window", "must be positive")
	}
	poolSize := int(c.PotentialFraction * float64(c.InputSize))
	if poolSize < 1 {
		return newConfigError("potential_fraction", "potential pool would be empty")
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Omitted fields keep their
// DefaultConfig values. The loaded configuration is validated.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
