// Package config loads and validates application configuration from
// environment variables (prefix TRENDS) layered over an optional YAML file.
// Environment always wins; defaults cover local development.
package config
