package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConfiguration = errors.New("invalid target definition")
	ErrStorage       = errors.New("storage failure")
	ErrProbeInFlight = errors.New("probe already in flight")
	ErrPaused        = errors.New("target is paused")
	ErrInvalidWindow = errors.New("unknown window")
	ErrConflict      = errors.New("already exists")
)

// ConfigError describes a malformed target definition rejected at the
// registry boundary.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfiguration, e.Field, e.Msg)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// StorageError means an observation could not be durably appended. The
// target state is left as it was.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
