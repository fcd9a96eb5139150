// Package reconcile brings the local scan history in line with the backend's
// authoritative record list.
//
// Remote entries are mapped with an explicit field precedence (label: class
// over predicted_class; time: created_at over timestamp over now; image:
// image_data over image) and then replace the local history wholesale.
// Reconciliation is best-effort: fetch, mapping, or write failures leave the
// local history exactly as it was and are only logged.
package reconcile
