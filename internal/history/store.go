package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"wastescan/internal/kvstore"
	"wastescan/internal/logging"
	"wastescan/internal/prediction"
)

// StorageKey is the local store key holding the JSON-serialized sequence.
const StorageKey = "scanHistory"

// Capacity bounds.
const (
	MinCapacity     = 1
	MaxCapacity     = 50
	DefaultCapacity = 20
)

// ClampCapacity forces n into [MinCapacity, MaxCapacity].
func ClampCapacity(n int) int {
	return min(max(n, MinCapacity), MaxCapacity)
}

// Store is the bounded, insertion-ordered scan history with write-through
// persistence. Index 0 is the most recently inserted record. Every mutation
// computes the full next sequence, writes it to the backing kv store, and only
// then replaces the in-memory sequence; a failed write leaves state unchanged.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger

	mu       sync.RWMutex
	records  []prediction.Record
	capacity int
	current  *prediction.Record
}

// New creates a history store and loads the persisted snapshot once. A nil kv
// falls back to an in-memory store. Unreadable snapshots are logged and the
// history starts empty.
func New(kv kvstore.Store, capacity int, logger *slog.Logger) *Store {
	if kv == nil {
		kv = kvstore.NewMemory()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{
		kv:       kv,
		logger:   logging.NewComponentLogger(logger, "history"),
		records:  []prediction.Record{},
		capacity: ClampCapacity(capacity),
	}

	if err := s.load(); err != nil {
		logging.WarnWithContext(s.logger, "failed to load scan history",
			"history_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the snapshot will be overwritten on the next change"),
			logging.String(logging.FieldImpact, "previous scans are not shown"))
	}
	return s
}

// Add prepends record and evicts the oldest entries beyond capacity. The
// sequence is rebuilt from the persisted snapshot under the store's update
// lock, so records added by another process sharing the state dir are kept.
func (s *Store) Add(record prediction.Record) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("add record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next []prediction.Record
	evicted := 0
	err := s.update(func(base []prediction.Record) []prediction.Record {
		keep := min(len(base), s.capacity-1)
		next = make([]prediction.Record, 0, keep+1)
		next = append(next, record.Clone())
		next = append(next, base[:keep]...)
		evicted = len(base) - keep
		return next
	})
	if err != nil {
		return err
	}
	s.records = next

	s.logger.Debug("scan added to history",
		logging.String("label", record.Label),
		logging.Float64("confidence", record.Confidence),
		logging.Int("history_size", len(next)),
		logging.Int("evicted", evicted))
	return nil
}

// SetCapacity clamps n into range, evicts the oldest entries beyond it, and
// persists. It returns the effective capacity.
func (s *Store) SetCapacity(n int) (int, error) {
	capacity := ClampCapacity(n)

	s.mu.Lock()
	defer s.mu.Unlock()

	var next []prediction.Record
	evicted := 0
	err := s.update(func(base []prediction.Record) []prediction.Record {
		next = base[:min(len(base), capacity)]
		evicted = len(base) - len(next)
		return next
	})
	if err != nil {
		return s.capacity, err
	}
	s.records = next
	s.capacity = capacity

	s.logger.Debug("history capacity changed",
		logging.Int("requested", n),
		logging.Int("capacity", capacity),
		logging.Int("evicted", evicted))
	return capacity, nil
}

// Reconcile replaces the whole sequence with records, which must already be
// ordered most recent first. Entries beyond capacity are dropped from the
// tail. If no current result is set, the first record becomes current.
func (s *Store) Reconcile(records []prediction.Record) error {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("reconcile record %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := prediction.CloneAll(records[:min(len(records), s.capacity)])
	if err := s.persist(next); err != nil {
		return err
	}
	s.records = next
	if s.current == nil && len(next) > 0 {
		current := next[0].Clone()
		s.current = &current
	}

	s.logger.Debug("history reconciled",
		logging.Int("received", len(records)),
		logging.Int("history_size", len(next)))
	return nil
}

// Clear removes every record and persists an empty sequence.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := []prediction.Record{}
	if err := s.persist(next); err != nil {
		return err
	}
	removed := len(s.records)
	s.records = next

	s.logger.Debug("history cleared", logging.Int("removed", removed))
	return nil
}

// Snapshot returns a deep copy of the sequence, most recent first.
func (s *Store) Snapshot() []prediction.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return prediction.CloneAll(s.records)
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Capacity returns the current capacity.
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// Current returns the currently displayed result, if any.
func (s *Store) Current() (prediction.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return prediction.Record{}, false
	}
	return s.current.Clone(), true
}

// SetCurrent marks record as the currently displayed result.
func (s *Store) SetCurrent(record prediction.Record) {
	clone := record.Clone()
	s.mu.Lock()
	s.current = &clone
	s.mu.Unlock()
}

// ClearCurrent unsets the currently displayed result.
func (s *Store) ClearCurrent() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Store) persist(next []prediction.Record) error {
	if next == nil {
		next = []prediction.Record{}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	return nil
}

// update recomputes the sequence from the persisted snapshot and writes the
// result in one kv update. An unreadable snapshot falls back to the in-memory
// sequence. Callers hold s.mu.
func (s *Store) update(mutate func(base []prediction.Record) []prediction.Record) error {
	return kvstore.Update(s.kv, StorageKey, func(current []byte, ok bool) ([]byte, error) {
		base := s.records
		if ok {
			if stored, _, err := decodeSnapshot(current, MaxCapacity); err == nil {
				base = stored
			} else {
				s.logger.Debug("persisted history unreadable, using in-memory copy", logging.Error(err))
			}
		} else {
			base = nil
		}
		next := mutate(base)
		if next == nil {
			next = []prediction.Record{}
		}
		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("marshal history: %w", err)
		}
		return data, nil
	})
}

// decodeSnapshot parses a snapshot, drops invalid entries, and keeps at most
// limit records.
func decodeSnapshot(data []byte, limit int) ([]prediction.Record, []error, error) {
	if len(data) == 0 {
		return []prediction.Record{}, nil, nil
	}
	var stored []prediction.Record
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, nil, fmt.Errorf("parse history: %w", err)
	}

	records := make([]prediction.Record, 0, min(len(stored), limit))
	var skipped []error
	for i, rec := range stored {
		if err := rec.Validate(); err != nil {
			skipped = append(skipped, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		if len(records) < limit {
			records = append(records, rec)
		}
	}
	return records, skipped, nil
}

func (s *Store) load() error {
	data, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if !ok || len(data) == 0 {
		return nil
	}

	records, skipped, err := decodeSnapshot(data, s.capacity)
	if err != nil {
		return err
	}
	s.records = records

	if len(skipped) > 0 {
		logging.WarnWithContext(s.logger, "skipped invalid history entries",
			"history_entries_skipped",
			logging.Int("skipped", len(skipped)),
			logging.Error(errors.Join(skipped...)),
			logging.String(logging.FieldImpact, "some previous scans are not shown"))
	}
	s.logger.Debug("loaded scan history",
		logging.Int("entry_count", len(records)),
		logging.Int("capacity", s.capacity))
	return nil
}
