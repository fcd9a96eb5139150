// Package view derives filtered, sorted listings and aggregate statistics
// from a history snapshot without modifying it.
package view
