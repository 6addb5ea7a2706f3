// Package config loads the pool daemon's runtime settings from multiple
// sources (YAML settings file, environment variables, CLI flags) with
// precedence: CLI flags > YAML settings > Environment variables > Defaults.
// The worker counts themselves live in the pool config file handled by
// package poolconfig; this package only decides where that file is.
package config
