// Package environment resolves the active pool environment from an ordered
// list of signal providers. The first provider reporting a non-empty name
// wins; when none do, no environment is active.
//
// The default order is the process-wide Flag, RACK_ENV, RESQUE_ENV, and
// finally an optional Reporter such as a host framework. Resolution is not
// cached: callers resolve again on every configuration load.
package environment
