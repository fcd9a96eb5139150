package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wastescan/internal/apiclient"
	"wastescan/internal/gate"
	"wastescan/internal/history"
	"wastescan/internal/ingest"
	"wastescan/internal/logging"
	"wastescan/internal/prediction"
	"wastescan/internal/reconcile"
	"wastescan/internal/services"
)

// FailureMessage is shown when classification fails. It stays until the next
// submission.
const FailureMessage = "Failed to classify image. Please try again."

// ErrSuperseded is returned when a response arrives after a newer request was
// issued. The response is discarded without touching state.
var ErrSuperseded = errors.New("session: response superseded by a newer request")

// Classifier is the remote classification capability.
type Classifier interface {
	Classify(ctx context.Context, filename, contentType string, data []byte) (apiclient.Prediction, error)
}

// Reconciler synchronizes local history with the backend.
type Reconciler interface {
	Run(ctx context.Context) reconcile.Result
}

// State is a snapshot of what the user sees.
type State struct {
	Loading  bool               `json:"loading"`
	Error    string             `json:"error,omitempty"`
	Current  *prediction.Record `json:"current,omitempty"`
	Decision *gate.Decision     `json:"decision,omitempty"`
	Token    uint64             `json:"token"`
}

// Outcome is the applied result of a submission.
type Outcome struct {
	Record   prediction.Record
	Decision gate.Decision
	Token    uint64
}

// Session wires classification, history, and the threshold gate together.
// Only the response to the most recently issued request is ever applied.
type Session struct {
	classifier Classifier
	history    *history.Store
	gate       *gate.Gate
	announcer  gate.Announcer
	failures   FailureNotifier
	reconciler Reconciler
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	token    uint64
	loading  bool
	message  string
	decision *gate.Decision
}

// Option customizes a Session.
type Option func(*Session)

// WithAnnouncer sets the accessibility announcer.
func WithAnnouncer(a gate.Announcer) Option {
	return func(s *Session) { s.announcer = a }
}

// FailureNotifier is told about classification failures of the latest request.
type FailureNotifier interface {
	NotifyClassificationFailed(ctx context.Context, filename string, err error) error
}

// WithFailureNotifier reports failed classifications to n.
func WithFailureNotifier(n FailureNotifier) Option {
	return func(s *Session) { s.failures = n }
}

// WithReconciler enables history synchronization in Start.
func WithReconciler(r Reconciler) Option {
	return func(s *Session) { s.reconciler = r }
}

// WithClock overrides the clock used to timestamp new records.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a session. A nil gate uses the default threshold.
func New(classifier Classifier, store *history.Store, g *gate.Gate, logger *slog.Logger, opts ...Option) *Session {
	if g == nil {
		g = gate.New(gate.DefaultThreshold)
	}
	s := &Session{
		classifier: classifier,
		history:    store,
		gate:       g,
		logger:     logging.NewComponentLogger(logger, "session"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the startup history synchronization when a reconciler is set.
// Failures are logged by the reconciler and never surface as session errors.
func (s *Session) Start(ctx context.Context) reconcile.Result {
	if s.reconciler == nil {
		return reconcile.Result{}
	}
	return s.reconciler.Run(ctx)
}

// Submit classifies a ready preview. Issuing the request invalidates every
// earlier in-flight request.
func (s *Session) Submit(ctx context.Context, preview ingest.Preview) (Outcome, error) {
	if s.classifier == nil || s.history == nil {
		return Outcome{}, services.Wrap(services.ErrConfiguration, "session", "submit", "classifier or history not configured", nil)
	}

	s.mu.Lock()
	s.token++
	token := s.token
	s.loading = true
	s.message = ""
	s.decision = nil
	s.history.ClearCurrent()
	s.mu.Unlock()

	ctx = services.WithToken(ctx, token)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)

	logger.Debug("classification requested",
		logging.String("file", preview.Name),
		logging.Int("bytes", len(preview.Data)))
	started := time.Now()
	pred, err := s.classifier.Classify(ctx, preview.Name, preview.ContentType, preview.Data)
	elapsed := time.Since(started)

	var rec prediction.Record
	if err == nil {
		rec = prediction.Record{
			Label:         pred.Class,
			Confidence:    float64(pred.Confidence),
			Probabilities: pred.Probabilities,
			Image:         preview.DataURL,
			Filename:      preview.Name,
			ContentType:   preview.ContentType,
			Timestamp:     s.now().UTC(),
		}
		if verr := rec.Validate(); verr != nil {
			err = verr
		}
	}

	s.mu.Lock()
	if latest := s.token; token != latest {
		s.mu.Unlock()
		logger.Debug("discarding superseded classification response",
			logging.Uint64("latest_token", latest),
			logging.Duration("elapsed", elapsed))
		return Outcome{}, ErrSuperseded
	}

	if err != nil {
		s.loading = false
		s.message = FailureMessage
		s.mu.Unlock()
		wrapped := services.Wrap(services.ErrClassification, "session", "classify", preview.Name, err)
		logging.ErrorWithContext(logger, "classification failed", "classification_failed",
			logging.Error(wrapped),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "check that the classification backend is running"))
		if s.failures != nil {
			if nerr := s.failures.NotifyClassificationFailed(ctx, preview.Name, err); nerr != nil {
				logger.Warn("failure notification not sent", logging.Error(nerr))
			}
		}
		return Outcome{}, wrapped
	}

	s.history.SetCurrent(rec)
	if herr := s.history.Add(rec); herr != nil {
		logging.WarnWithContext(logger, "failed to save scan to history", "history_persist_failed",
			logging.Error(herr),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
			logging.String(logging.FieldImpact, "result shown but not kept in history"))
	}
	decision := s.gate.Evaluate(rec.Label, rec.Confidence)
	s.decision = &decision
	s.loading = false
	s.mu.Unlock()

	logger.Info("classification complete",
		logging.String("label", rec.Label),
		logging.Float64("confidence", rec.Confidence),
		logging.Bool("celebrate", decision.Celebrate),
		logging.Duration("elapsed", elapsed))

	if err := gate.Notify(ctx, decision, s.announcer); err != nil {
		logging.WarnWithContext(logger, "announcement failed", "announce_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "result not announced"))
	}
	return Outcome{Record: rec.Clone(), Decision: decision, Token: token}, nil
}

// DismissError clears the pending failure message.
func (s *Session) DismissError() {
	s.mu.Lock()
	s.message = ""
	s.mu.Unlock()
}

// SetThreshold updates the celebration threshold.
func (s *Session) SetThreshold(threshold float64) float64 {
	return s.gate.SetThreshold(threshold)
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	st := State{
		Loading: s.loading,
		Error:   s.message,
		Token:   s.token,
	}
	if s.decision != nil {
		d := *s.decision
		st.Decision = &d
	}
	s.mu.Unlock()

	if s.history != nil {
		if cur, ok := s.history.Current(); ok {
			st.Current = &cur
		}
	}
	return st
}
