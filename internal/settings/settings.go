package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"wastescan/internal/config"
	"wastescan/internal/gate"
	"wastescan/internal/history"
	"wastescan/internal/kvstore"
	"wastescan/internal/logging"
)

// StorageKey is the kv key holding the persisted settings.
const StorageKey = "scanSettings"

// Settings are the user-adjustable display and history options.
type Settings struct {
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	HistoryLimit        int     `json:"historyLimit"`
}

// Defaults returns the settings implied by cfg, or the built-in defaults when
// cfg is nil.
func Defaults(cfg *config.Config) Settings {
	if cfg == nil {
		return Settings{ConfidenceThreshold: gate.DefaultThreshold, HistoryLimit: history.DefaultCapacity}.Normalize()
	}
	return Settings{
		ConfidenceThreshold: cfg.Display.ConfidenceThreshold,
		HistoryLimit:        cfg.History.Limit,
	}.Normalize()
}

// Normalize clamps each field into its own range.
func (s Settings) Normalize() Settings {
	return Settings{
		ConfidenceThreshold: gate.Clamp(s.ConfidenceThreshold),
		HistoryLimit:        history.ClampCapacity(s.HistoryLimit),
	}
}

type stored struct {
	ConfidenceThreshold *float64 `json:"confidenceThreshold"`
	HistoryLimit        *int     `json:"historyLimit"`
}

// Store persists settings in a kv store.
type Store struct {
	kv       kvstore.Store
	defaults Settings
	logger   *slog.Logger

	mu sync.Mutex
}

// NewStore binds settings persistence to kv. Missing fields fall back to
// defaults.
func NewStore(kv kvstore.Store, defaults Settings, logger *slog.Logger) *Store {
	if kv == nil {
		kv = kvstore.NewMemory()
	}
	return &Store{
		kv:       kv,
		defaults: defaults.Normalize(),
		logger:   logging.NewComponentLogger(logger, "settings"),
	}
}

// Load returns the persisted settings merged over the defaults. Unreadable
// data is logged and the defaults are returned.
func (s *Store) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// SetThreshold changes only the confidence threshold.
func (s *Store) SetThreshold(threshold float64) (Settings, error) {
	if math.IsNaN(threshold) {
		return Settings{}, fmt.Errorf("confidence threshold must be a number")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.loadLocked()
	next.ConfidenceThreshold = gate.Clamp(threshold)
	return next, s.saveLocked(next)
}

// SetHistoryLimit changes only the history limit.
func (s *Store) SetHistoryLimit(limit int) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.loadLocked()
	next.HistoryLimit = history.ClampCapacity(limit)
	return next, s.saveLocked(next)
}

// Resizer is the history side of a limit change.
type Resizer interface {
	SetCapacity(n int) (int, error)
}

// ApplyHistoryLimit resizes history through r and saves the new limit only
// after the resize has persisted. When saving the limit fails, r is set back
// to the previous limit; records evicted by a shrink stay evicted.
func (s *Store) ApplyHistoryLimit(limit int, r Resizer) (Settings, error) {
	if r == nil {
		return s.SetHistoryLimit(limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.loadLocked()
	next := prev
	next.HistoryLimit = history.ClampCapacity(limit)

	if _, err := r.SetCapacity(next.HistoryLimit); err != nil {
		return prev, fmt.Errorf("resize history: %w", err)
	}
	if err := s.saveLocked(next); err != nil {
		if _, rerr := r.SetCapacity(prev.HistoryLimit); rerr != nil {
			logging.WarnWithContext(s.logger, "failed to restore history limit", "history_limit_restore_failed",
				logging.Error(rerr),
				logging.Int("history_limit", prev.HistoryLimit),
				logging.String(logging.FieldImpact, "history capacity differs from the saved limit until restart"))
		}
		return prev, err
	}
	return next, nil
}

// Save normalizes and persists settings.
func (s *Store) Save(next Settings) (Settings, error) {
	next = next.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	return next, s.saveLocked(next)
}

func (s *Store) loadLocked() Settings {
	out := s.defaults
	data, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		s.warnUnreadable(err)
		return out
	}
	if !ok || len(data) == 0 {
		return out
	}
	var raw stored
	if err := json.Unmarshal(data, &raw); err != nil {
		s.warnUnreadable(err)
		return out
	}
	if raw.ConfidenceThreshold != nil {
		out.ConfidenceThreshold = *raw.ConfidenceThreshold
	}
	if raw.HistoryLimit != nil {
		out.HistoryLimit = *raw.HistoryLimit
	}
	return out.Normalize()
}

func (s *Store) saveLocked(next Settings) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.kv.Set(StorageKey, data); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	s.logger.Debug("settings saved",
		logging.Float64("confidence_threshold", next.ConfidenceThreshold),
		logging.Int("history_limit", next.HistoryLimit))
	return nil
}

func (s *Store) warnUnreadable(err error) {
	logging.WarnWithContext(s.logger, "failed to read saved settings",
		"settings_load_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run 'wastescan settings show' after fixing the state directory"),
		logging.String(logging.FieldImpact, "using configured defaults"))
}
