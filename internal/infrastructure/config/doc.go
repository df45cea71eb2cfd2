// Package config loads server configuration from the environment with an
// optional YAML overlay, and can watch that file for changes.
package config
