package pallium

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.activeColumnTarget() != 41 {
		t.Errorf("expected 41 target winners for defaults, got %d", cfg.activeColumnTarget())
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero input size", func(c *Config) { c.InputSize = 0 }, "input_size"},
		{"negative columns", func(c *Config) { c.ColumnCount = -1 }, "column_count"},
		{"sparsity one", func(c *Config) { c.Sparsity = 1.0 }, "sparsity"},
		{"sparsity below one column", func(c *Config) { c.Sparsity = 0.0002 }, "sparsity"},
		{"threshold above one", func(c *Config) { c.ConnectedPermanenceThreshold = 1.5 }, "connected_permanence_threshold"},
		{"negative increment", func(c *Config) { c.PermanenceIncrement = -0.1 }, "permanence_increment"},
		{"zero potential fraction", func(c *Config) { c.PotentialFraction = 0 }, "potential_fraction"},
		{"zero duty cycle period", func(c *Config) { c.DutyCyclePeriod = 0 }, "duty_cycle_period"},
		{"overshoot below one", func(c *Config) { c.MaxOvershoot = 0.5 }, "max_overshoot"},
		{"zero cells per column", func(c *Config) { c.CellsPerColumn = 0 }, "cells_per_column"},
		{"learning above activation", func(c *Config) { c.LearningThreshold = 20 }, "learning_threshold"},
		{"synapse growth below activation", func(c *Config) { c.MaxNewSynapsesPerSegment = 5 }, "max_new_synapses_per_segment"},
		{"tiny window", func(c *Config) { c.RollingWindowSize = 1 }, "rolling_window_size"},
		{"negative dynamic k", func(c *Config) { c.AnomalyDynamicK = -1 }, "anomaly_dynamic_k"},
		{"zero throughput window", func(c *Config) { c.ThroughputWindow = 0 }, "throughput_window"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if ce.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, ce.Field)
			}
		})
	}
}

func TestValidateAcceptsNearIntegralWinnerCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sparsity = 0.02 // 0.02 * 2048 = 40.96, rounds cleanly to 41
	if err := cfg.Validate(); err != nil {
		t.Fatalf("near-integral winner count should pass: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pallium.yaml")
	doc := []byte(`
input_size: 512
column_count: 512
sparsity: 0.0625
rolling_window_size: 50
throughput_window: 5s
seed: 7
`)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.InputSize != 512 || cfg.ColumnCount != 512 {
		t.Errorf("expected 512x512 topology, got %dx%d", cfg.InputSize, cfg.ColumnCount)
	}
	if cfg.Seed != 7 {
		t.Errorf("expected seed 7, got %d", cfg.Seed)
	}
	if cfg.ThroughputWindow != 5*time.Second {
		t.Errorf("expected 5s throughput window, got %v", cfg.ThroughputWindow)
	}
	// Unset fields keep defaults.
	if cfg.CellsPerColumn != 32 {
		t.Errorf("expected default cells per column, got %d", cfg.CellsPerColumn)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("sparsity: 2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
