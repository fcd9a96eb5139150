// Package history provides the bounded, persisted scan history cache.
//
// The Store is the single owner of the history sequence and the single writer
// of its persisted snapshot. Records are kept in insertion order (newest
// first), never by timestamp, and the sequence length never exceeds the
// configured capacity (1-50, default 20).
//
// # Persistence
//
// The full sequence is written under the "scanHistory" key of a kvstore.Store
// on every mutation before the mutation is considered complete. The snapshot
// is read once, when the Store is created.
//
// # Reconciliation
//
// Reconcile treats the remote history as authoritative: it replaces the local
// sequence instead of merging by key, so local-only entries are discarded.
package history
