// Package config provides configuration loading and validation for the
// speech workers. It reads YAML files, layers environment overrides on top,
// and validates every section before the workers start.
package config
