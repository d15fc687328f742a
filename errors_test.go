package pallium

import (
	"errors"
	"strings"
	"testing"
)

func TestInputErrorMatching(t *testing.T) {
	err := newWidthError(2048, 100)
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("width error should match ErrInvalidInput")
	}
	if !strings.Contains(err.Error(), "want 2048") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	err = newValueError(17)
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("value error should match ErrInvalidInput")
	}
	if !strings.Contains(err.Error(), "index 17") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestConfigErrorMatching(t *testing.T) {
	err := newConfigError("sparsity", "must be in (0, 1)")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("config error should match ErrInvalidConfig")
	}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Field != "sparsity" {
		t.Errorf("expected sparsity config error, got %v", err)
	}
}

func TestCorruptionErrorMatching(t *testing.T) {
	err := newCorruptionError("spatial pooler", "non-finite boost factor for column 3")
	if !errors.Is(err, ErrStateCorruption) {
		t.Error("corruption error should match ErrStateCorruption")
	}
	if !strings.Contains(err.Error(), "spatial pooler") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestSnapshotErrorUnwrap(t *testing.T) {
	err := newSnapshotError("file", "load", "daily", ErrSnapshotNotFound)
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Error("snapshot error should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), `"daily"`) {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
