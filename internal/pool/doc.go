// Package pool holds the process-wide worker pool state: the effective
// configuration resolved from a Source and the after-prefork hook chain.
//
// InitConfig runs load, environment resolution, and merge as one critical
// section and publishes the result with a single swap, so readers never see a
// partially replaced configuration. A failed load leaves the previous
// configuration in place. The hook chain survives every reload.
//
// Instance returns the shared Pool for the process. Collaborators such as the
// HTTP surface receive it by injection; New builds independent pools for
// tests.
package pool
