// Package config loads, normalizes, and validates wastescan configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the WASTESCAN_API_URL environment
// override. Always obtain settings through this package so downstream code
// receives expanded paths and clear validation errors.
package config
