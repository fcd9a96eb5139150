package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wastescan/internal/ingest"
	"wastescan/internal/logging"
)

const (
	defaultDebounce = 500 * time.Millisecond
	defaultTick     = 100 * time.Millisecond
)

// Handler receives each dropped file that reached Ready.
type Handler func(ctx context.Context, path string, preview ingest.Preview) error

// Stats counts watcher activity.
type Stats struct {
	Seen      int `json:"seen"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Withdrawn int `json:"withdrawn"`
	Errors    int `json:"errors"`
}

// Watcher feeds files appearing in a drop folder through an ingest pipeline.
// A file is picked up once it has stopped changing for the debounce window;
// until then it counts as an active drag on the pipeline.
type Watcher struct {
	dir      string
	pipeline *ingest.Pipeline
	handler  Handler
	logger   *slog.Logger
	debounce time.Duration
	tick     time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
	stats   Stats
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long a file must be quiet before it is processed.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
			if w.tick > d {
				w.tick = d
			}
		}
	}
}

// New validates dir and builds a watcher. Run starts it.
func New(dir string, pipeline *ingest.Pipeline, handler Handler, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	if pipeline == nil || handler == nil {
		return nil, errors.New("watch: pipeline and handler are required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	w := &Watcher{
		dir:      abs,
		pipeline: pipeline,
		handler:  handler,
		logger:   logging.NewComponentLogger(logger, "watch"),
		debounce: defaultDebounce,
		tick:     defaultTick,
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching drop folder", logging.String("dir", w.dir))

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("drop folder watch stopped", logging.String("dir", w.dir))
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			logging.WarnWithContext(w.logger, "drop folder watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some dropped files may be missed"))
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func ignored(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".tmp")
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if ignored(event.Name) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	_, tracked := w.pending[event.Name]
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		if !tracked {
			w.stats.Seen++
			w.pipeline.DragEnter()
		}
		w.pending[event.Name] = time.Now()
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if tracked {
			delete(w.pending, event.Name)
			w.stats.Withdrawn++
			w.pipeline.DragLeave()
		}
	}
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, path)
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	file, err := ingest.FileFromPath(path)
	if err != nil {
		w.pipeline.DragLeave()
		if !errors.Is(err, os.ErrNotExist) {
			w.count(func(s *Stats) { s.Errors++ })
			logging.WarnWithContext(w.logger, "dropped file unreadable", "watch_file_unreadable",
				logging.String("path", path),
				logging.Error(err))
		}
		return
	}

	preview, err := w.pipeline.Drop(file)
	if err != nil {
		w.count(func(s *Stats) { s.Rejected++ })
		msg := err.Error()
		var ierr *ingest.Error
		if errors.As(err, &ierr) {
			msg = ierr.Message()
		}
		w.logger.Info("dropped file rejected",
			logging.String("path", path),
			logging.String("reason", msg))
		return
	}

	w.count(func(s *Stats) { s.Accepted++ })
	if err := w.handler(ctx, path, preview); err != nil {
		w.count(func(s *Stats) { s.Errors++ })
		w.logger.Debug("drop handler failed", logging.String("path", path), logging.Error(err))
	}
	w.pipeline.Remove()
}

func (w *Watcher) count(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}
