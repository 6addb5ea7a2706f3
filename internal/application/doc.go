// Package application provides pool daemon initialization and dependency
// wiring. It loads the pool configuration into the shared Pool, builds the
// remote accessor router and HTTP server, and optionally watches the pool
// config file, keeping the main package focused on CLI parsing and signals.
package application
