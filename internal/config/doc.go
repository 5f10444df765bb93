// Package config loads, normalizes, and validates devmirror configuration data.
//
// It supplies repository defaults that reproduce the stock adb + scrcpy
// behaviour, expands user paths (including tilde shortcuts), reads TOML files,
// and honours environment fallbacks such as DEVMIRROR_NTFY_TOPIC. A missing
// configuration file is not an error: every knob has a working default.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
