// Package services defines shared utilities consumed by the ingestion,
// history, and classification components.
//
// Key responsibilities:
//   - Context helpers that stamp request tokens, ingestion sources, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can decide
//     whether a failure is shown briefly, held until retry, or only logged.
//
// Use these helpers when wiring new components so failure handling and
// observability stay uniform.
package services
