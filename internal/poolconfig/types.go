package poolconfig

import (
	"sort"
	"strings"
)

// Value is either a worker count or an environment block. Block is non-nil
// only for environment blocks.
type Value struct {
	Count int
	Block map[string]int
}

// Count returns a default entry value.
func Count(n int) Value {
	return Value{Count: n}
}

// Block returns an environment block value holding a copy of entries.
func Block(entries map[string]int) Value {
	block := make(map[string]int, len(entries))
	for k, v := range entries {
		block[k] = v
	}
	return Value{Block: block}
}

// IsBlock reports whether v is an environment block.
func (v Value) IsBlock() bool {
	return v.Block != nil
}

// RawConfig maps worker keys to counts and environment names to blocks.
type RawConfig map[string]Value

// Clone returns a deep copy of r.
func (r RawConfig) Clone() RawConfig {
	out := make(RawConfig, len(r))
	for k, v := range r {
		if v.IsBlock() {
			out[k] = Block(v.Block)
			continue
		}
		out[k] = v
	}
	return out
}

// Effective is the flat worker key to count mapping for one environment.
type Effective map[string]int

// Clone returns a copy of e. A nil Effective clones to an empty one.
func (e Effective) Clone() Effective {
	out := make(Effective, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Keys returns the worker keys in lexical order.
func (e Effective) Keys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SplitWorkerKey returns the worker type names encoded in a comma-joined key.
// It exists for process supervisors; Merge never splits keys.
func SplitWorkerKey(key string) []string {
	parts := strings.Split(key, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		names = append(names, part)
	}
	return names
}
