// Package config loads aggregator configuration from REGISTRY_* environment
// variables with an optional YAML overlay file (REGISTRY_CONFIG_FILE), and
// validates the result before the process starts.
package config
