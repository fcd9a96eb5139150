package reconcile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"wastescan/internal/apiclient"
	"wastescan/internal/history"
	"wastescan/internal/logging"
	"wastescan/internal/services"
)

// Source is the remote history capability.
type Source interface {
	FetchHistory(ctx context.Context, limit int) ([]apiclient.HistoryItem, error)
}

// Result describes one reconciliation attempt. Err is kept for diagnostics
// only; callers must not surface it to the user.
type Result struct {
	Applied  bool
	Received int
	Stored   int
	Err      error
}

// Service replaces the local history with the remote record list.
type Service struct {
	source Source
	store  *history.Store
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// Option customizes the service.
type Option func(*Service)

// WithClock overrides the clock used for entries without timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a reconciliation service.
func NewService(source Source, store *history.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		source: source,
		store:  store,
		logger: logging.NewComponentLogger(logger, "reconcile"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run fetches the remote history and, if fetch and mapping succeed, replaces
// the local history with it. Failures leave the local history untouched and
// are logged as warnings. Concurrent calls share a single fetch.
func (s *Service) Run(ctx context.Context) Result {
	v, _, _ := s.group.Do("reconcile", func() (any, error) {
		return s.run(ctx), nil
	})
	return v.(Result)
}

func (s *Service) run(ctx context.Context) Result {
	logger := logging.WithContext(ctx, s.logger)
	if s.source == nil || s.store == nil {
		return Result{Err: services.Wrap(services.ErrConfiguration, "reconcile", "run", "source or store not configured", nil)}
	}

	items, err := s.source.FetchHistory(ctx, s.store.Capacity())
	if err != nil {
		return s.fail(logger, services.Wrap(services.ErrReconciliation, "reconcile", "fetch", "", err), 0)
	}
	records, err := MapItems(items, s.now())
	if err != nil {
		return s.fail(logger, services.Wrap(services.ErrReconciliation, "reconcile", "map", "", err), len(items))
	}
	if err := s.store.Reconcile(records); err != nil {
		return s.fail(logger, services.Wrap(services.ErrReconciliation, "reconcile", "apply", "", err), len(items))
	}

	stored := s.store.Len()
	logger.Info("history synchronized with backend",
		logging.Int("received", len(items)),
		logging.Int("stored", stored))
	return Result{Applied: true, Received: len(items), Stored: stored}
}

func (s *Service) fail(logger *slog.Logger, err error, received int) Result {
	logging.WarnWithContext(logger, "history sync failed",
		"history_reconcile_failed",
		logging.Error(err),
		logging.Int("received", received),
		logging.String(logging.FieldErrorHint, "check that the classification backend is reachable"),
		logging.String(logging.FieldImpact, "showing locally cached history"))
	return Result{Received: received, Err: err}
}
