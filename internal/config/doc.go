// Package config loads the executor daemon configuration from JSON or YAML
// and hot-reloads it on file changes.
package config
