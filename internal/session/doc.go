// Package session orchestrates one interactive classification flow: it sends
// ready images to the classifier, records results in history, evaluates the
// threshold gate, and tracks loading and error state.
//
// Each submission gets a monotonically increasing token. A response whose
// token is no longer the latest is dropped with ErrSuperseded, so a slow
// earlier request can never overwrite a newer result.
package session
