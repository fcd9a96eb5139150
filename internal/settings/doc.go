// Package settings persists the user-adjustable confidence threshold and
// history limit. Each field is clamped independently.
package settings
