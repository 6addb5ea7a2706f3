// Package poolconfig turns a configuration source (an in-memory mapping or a
// YAML file, optionally templated) into a RawConfig and flattens it into the
// Effective worker counts for one environment.
//
// Top-level integer entries are defaults. Top-level mappings are environment
// blocks whose entries replace defaults with the same key when that
// environment is active. Worker keys are opaque strings: "foo,bar" names a
// group of worker types sharing one count and is never split during a merge.
package poolconfig
