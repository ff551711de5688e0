// Package config loads, validates, and normalizes the clipsmith TOML
// configuration.
//
// Load resolves the config path (explicit flag, then
// ~/.config/clipsmith/config.toml, then ./clipsmith.toml), decodes it over
// the built-in defaults, expands all path fields, and validates the result.
// Missing files are not an error; the defaults are usable as-is for local
// operation apart from service API keys.
package config
