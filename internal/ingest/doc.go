// Package ingest validates candidate image files and prepares them for
// classification.
//
// A Pipeline moves through Idle, Validating, Reading, and Ready, or lands in
// Rejected, which falls back to Idle after RejectResetDelay. Only files whose
// declared content type starts with image/ and whose size is at most
// MaxFileSize are accepted. Drag gestures are tracked with a nesting counter
// that a drop resets.
package ingest
