package pallium

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the pallium package.
var (
	// ErrInvalidInput is returned when an input vector has the wrong width
	// or contains non-binary values. The engine state is untouched.
	ErrInvalidInput = errors.New("invalid input vector")

	// ErrInvalidConfig is returned when a configuration option is out of
	// range or inconsistent with the rest of the configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStateCorruption is returned when an internal invariant is violated,
	// such as a non-finite value produced by a learning update. It indicates
	// a defect and the engine must not be used further.
	ErrStateCorruption = errors.New("engine state corruption detected")

	// ErrSnapshotNotFound is returned when a snapshot store has no snapshot
	// under the requested name.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotFormat is returned when snapshot bytes cannot be decoded.
	ErrSnapshotFormat = errors.New("malformed snapshot")
)

// InputError describes why an input vector was rejected.
type InputError struct {
	// Reason is a short human-readable description.
	Reason string
	// Index is the offending element position, or -1 for width mismatches.
	Index int
	// Want and Got carry the expected and observed width for mismatches.
	Want, Got int
}

func (e *InputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid input vector: %s at index %d", e.Reason, e.Index)
	}
	return fmt.Sprintf("invalid input vector: %s (want %d, got %d)", e.Reason, e.Want, e.Got)
}

// Is implements error matching for InputError.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func newWidthError(want, got int) *InputError {
	return &InputError{Reason: "width mismatch", Index: -1, Want: want, Got: got}
}

func newValueError(index int) *InputError {
	return &InputError{Reason: "non-binary value", Index: index}
}

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func newConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// CorruptionError describes a violated internal invariant. Corruption is
// fatal: the error is reported upward rather than silently repaired, since
// silent recovery would quietly degrade detection quality.
type CorruptionError struct {
	Component string
	Detail    string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("engine state corruption detected in %s: %s", e.Component, e.Detail)
}

// Is implements error matching for CorruptionError.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrStateCorruption
}

func newCorruptionError(component, detail string) *CorruptionError {
	return &CorruptionError{Component: component, Detail: detail}
}

// SnapshotError wraps a snapshot store failure with the store and key.
type SnapshotError struct {
	Store string
	Name  string
	Op    string
	Cause error
}

func (e *SnapshotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("snapshot %s %q via %s: %v", e.Op, e.Name, e.Store, e.Cause)
	}
	return fmt.Sprintf("snapshot %s %q via %s failed", e.Op, e.Name, e.Store)
}

func (e *SnapshotError) Unwrap() error {
	return e.Cause
}

func newSnapshotError(store, op, name string, cause error) *SnapshotError {
	return &SnapshotError{Store: store, Op: op, Name: name, Cause: cause}
}
