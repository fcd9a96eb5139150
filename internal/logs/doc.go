// Package logs tails the wastescan log file for the CLI.
//
// Tail prints the last N lines and, in follow mode, keeps polling for appended
// lines until the context is cancelled. Truncation (log rotation) restarts the
// read from the beginning of the file.
package logs
