package poolconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigLoad matches every *LoadError via errors.Is.
	ErrConfigLoad = errors.New("pool config load failed")
	// ErrUnsupportedFormat is returned for files without a .yml or .yaml extension.
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	// ErrInvalidValue is returned when a worker count is not a non-negative integer.
	ErrInvalidValue = errors.New("worker count must be a non-negative integer")
	// ErrNestingTooDeep is returned when an environment block contains another mapping.
	ErrNestingTooDeep = errors.New("environment blocks cannot be nested")
	// ErrNoConfigFile is returned when no pool config file can be discovered.
	ErrNoConfigFile = errors.New("no pool config file found")
)

// LoadError reports a source that could not be turned into a RawConfig.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load pool config %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConfigLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrConfigLoad
}
