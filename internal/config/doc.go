// Package config loads, normalizes, and validates the taskscribe TOML
// configuration. It resolves the config path (explicit flag, user config
// dir, or project file), expands user paths, and applies repository
// defaults so the daemon and CLI always see a complete configuration.
package config
