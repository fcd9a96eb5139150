package testsupport

import (
	"testing"
	"time"

	"wastescan/internal/config"
	"wastescan/internal/history"
	"wastescan/internal/kvstore"
	"wastescan/internal/prediction"
)

// MustOpenStore opens the configured kv backend for tests and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) kvstore.Backend {
	t.Helper()

	backend, err := kvstore.Open(cfg.History.Backend, cfg.StorePath())
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() {
		backend.Close()
	})
	return backend
}

// NewRecord builds a valid record at a fixed offset from a stable base time.
func NewRecord(label string, confidence float64, minutes int) prediction.Record {
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	return prediction.Record{
		Label:      label,
		Confidence: confidence,
		Timestamp:  base.Add(time.Duration(minutes) * time.Minute),
	}
}

// SeedHistory writes records into the history stored in kv, oldest first, so
// the last record ends up most recent.
func SeedHistory(t testing.TB, kv kvstore.Store, capacity int, records ...prediction.Record) *history.Store {
	t.Helper()

	store := history.New(kv, capacity, nil)
	for _, rec := range records {
		if err := store.Add(rec); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}
	return store
}
