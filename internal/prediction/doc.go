// Package prediction defines the classification record shared by the
// ingestion, history, reconciliation, and view packages.
//
// A Record is created either by a successful classification or materialized
// from a remote history fetch, and is never mutated afterwards. The JSON form
// is the persisted snapshot format of the local history store.
package prediction
