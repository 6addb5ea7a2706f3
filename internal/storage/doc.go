// Package storage publishes effective pool configuration snapshots so that
// concurrent readers never observe a partially replaced configuration.
package storage
