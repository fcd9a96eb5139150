// Package kvstore provides the local key-value persistence behind the scan
// history cache.
//
// Store is deliberately small (Get, Set, Clear) so the history package has no
// ambient dependency on where bytes live. Three backends are provided: Memory
// for tests, FileStore (one JSON file per key, atomic rename, flock-guarded)
// and SQLiteStore (a single kv table).
package kvstore
