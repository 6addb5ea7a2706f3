package environment

import (
	"os"
	"strings"
	"sync"
)

const (
	// RackEnvVar is consulted after the global flag.
	RackEnvVar = "RACK_ENV"
	// PoolEnvVar is the pool's own environment variable.
	PoolEnvVar = "RESQUE_ENV"
)

// Provider reports an environment name and whether it is set.
type Provider func() (string, bool)

// Reporter is implemented by anything that knows its environment name.
type Reporter interface {
	Env() string
}

// Resolver combines providers with first-non-empty-wins semantics.
type Resolver struct {
	providers []Provider
}

// NewResolver returns a Resolver checking providers in order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Default returns the standard resolver: flag, RACK_ENV, RESQUE_ENV, reporter.
// Either argument may be nil.
func Default(flag *Flag, reporter Reporter) *Resolver {
	return NewResolver(
		flag.Lookup,
		EnvVar(RackEnvVar),
		EnvVar(PoolEnvVar),
		FromReporter(reporter),
	)
}

// Resolve returns the first non-empty environment name.
func (r *Resolver) Resolve() (string, bool) {
	if r == nil {
		return "", false
	}
	for _, provider := range r.providers {
		if provider == nil {
			continue
		}
		if name, ok := provider(); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// EnvVar reads a process environment variable on every call.
func EnvVar(name string) Provider {
	return func() (string, bool) {
		value, ok := os.LookupEnv(name)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
}

// Static always reports name. An empty name reports nothing.
func Static(name string) Provider {
	return func() (string, bool) {
		return name, name != ""
	}
}

// FromReporter queries r on every call. A nil Reporter reports nothing.
func FromReporter(r Reporter) Provider {
	return func() (string, bool) {
		if r == nil {
			return "", false
		}
		name := strings.TrimSpace(r.Env())
		return name, name != ""
	}
}

// Flag is a process-wide environment setting that takes precedence over
// every environment variable. The zero value is unset.
type Flag struct {
	mu    sync.RWMutex
	value string
	set   bool
}

// Set defines the flag.
func (f *Flag) Set(name string) {
	f.mu.Lock()
	f.value = name
	f.set = true
	f.mu.Unlock()
}

// Unset removes the flag.
func (f *Flag) Unset() {
	f.mu.Lock()
	f.value = ""
	f.set = false
	f.mu.Unlock()
}

// Lookup reports the flag value when it is defined and non-empty.
func (f *Flag) Lookup() (string, bool) {
	if f == nil {
		return "", false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value, f.set && f.value != ""
}
