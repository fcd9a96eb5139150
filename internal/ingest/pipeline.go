package ingest

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"wastescan/internal/logging"
	"wastescan/internal/prediction"
)

// RejectResetDelay is how long a rejection stays visible before the pipeline
// returns to Idle.
const RejectResetDelay = 3 * time.Second

// State is the pipeline lifecycle state.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateReading
	StateReady
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateReading:
		return "reading"
	case StateReady:
		return "ready"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Preview is validated, display-ready input for the classifier.
type Preview struct {
	Name        string
	ContentType string
	Data        []byte
	DataURL     string
}

// Pipeline validates selected or dropped files and turns them into previews.
// It never calls the classifier; callers dispatch classification on Ready.
type Pipeline struct {
	logger     *slog.Logger
	resetDelay time.Duration
	onReady    func(File, Preview)

	mu         sync.Mutex
	state      State
	message    string
	preview    *Preview
	dragDepth  int
	generation uint64
	resetTimer *time.Timer
	closed     bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithResetDelay overrides RejectResetDelay.
func WithResetDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.resetDelay = d
		}
	}
}

// WithOnReady registers a callback invoked, outside the pipeline lock, each
// time a file reaches Ready.
func WithOnReady(fn func(File, Preview)) Option {
	return func(p *Pipeline) {
		p.onReady = fn
	}
}

// NewPipeline constructs an idle pipeline.
func NewPipeline(logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger:     logging.NewComponentLogger(logger, "ingest"),
		resetDelay: RejectResetDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Select validates and reads file. On success the pipeline is Ready and the
// preview is returned. On rejection the returned error is an *Error and the
// pipeline returns to Idle after the reset delay.
func (p *Pipeline) Select(file File) (Preview, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Preview{}, fmt.Errorf("ingest: pipeline closed")
	}
	gen := p.advanceLocked()
	p.state = StateValidating
	p.message = ""
	p.preview = nil

	if ierr := validate(file); ierr != nil {
		p.rejectLocked(gen, ierr)
		p.mu.Unlock()
		return Preview{}, ierr
	}
	p.state = StateReading
	p.mu.Unlock()

	data, ierr := read(file)

	p.mu.Lock()
	if p.generation != gen || p.closed {
		p.mu.Unlock()
		return Preview{}, ErrSuperseded
	}
	if ierr != nil {
		p.rejectLocked(gen, ierr)
		p.mu.Unlock()
		return Preview{}, ierr
	}
	preview := Preview{
		Name:        file.Name,
		ContentType: file.ContentType,
		Data:        data,
		DataURL:     prediction.EncodeDataURL(file.ContentType, data),
	}
	stored := preview
	p.preview = &stored
	p.state = StateReady
	onReady := p.onReady
	p.mu.Unlock()

	p.logger.Debug("file ready",
		logging.String("file", file.Name),
		logging.String("content_type", file.ContentType),
		logging.Int("bytes", len(data)))
	if onReady != nil {
		onReady(file, preview)
	}
	return preview, nil
}

// Drop ends a drag gesture and selects file. The drag counter is reset
// unconditionally.
func (p *Pipeline) Drop(file File) (Preview, error) {
	p.mu.Lock()
	p.dragDepth = 0
	p.mu.Unlock()
	return p.Select(file)
}

// DragEnter records a drag entering the drop target.
func (p *Pipeline) DragEnter() {
	p.mu.Lock()
	p.dragDepth++
	p.mu.Unlock()
}

// DragLeave records a drag leaving the drop target. The counter never goes
// below zero.
func (p *Pipeline) DragLeave() {
	p.mu.Lock()
	if p.dragDepth > 0 {
		p.dragDepth--
	}
	p.mu.Unlock()
}

// Dragging reports whether a drag is over the drop target.
func (p *Pipeline) Dragging() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dragDepth > 0
}

// Remove discards the current preview and any pending error message.
func (p *Pipeline) Remove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanceLocked()
	p.state = StateIdle
	p.message = ""
	p.preview = nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ErrorMessage returns the user-facing message of the last rejection. It
// outlives the Rejected state until Remove or the next Select.
func (p *Pipeline) ErrorMessage() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

// Preview returns the current preview when the pipeline is Ready.
func (p *Pipeline) Preview() (Preview, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.preview == nil {
		return Preview{}, false
	}
	return *p.preview, true
}

// Close stops any pending reset. Further selections fail.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.advanceLocked()
}

// advanceLocked starts a new generation, invalidating pending resets and
// in-flight reads.
func (p *Pipeline) advanceLocked() uint64 {
	p.generation++
	if p.resetTimer != nil {
		p.resetTimer.Stop()
		p.resetTimer = nil
	}
	return p.generation
}

func (p *Pipeline) rejectLocked(gen uint64, ierr *Error) {
	p.state = StateRejected
	p.message = ierr.Message()
	p.preview = nil
	p.resetTimer = time.AfterFunc(p.resetDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.generation == gen && p.state == StateRejected {
			p.state = StateIdle
			p.resetTimer = nil
		}
	})
	p.logger.Info("file rejected",
		logging.String("file", ierr.Name),
		logging.String("reason", ierr.Kind.String()),
		logging.Error(ierr.Err))
}

func validate(file File) *Error {
	if !IsImage(file.ContentType) {
		return newError(KindInvalidType, file.Name, fmt.Sprintf("content type %q is not an image", file.ContentType), nil)
	}
	if file.Size > MaxFileSize {
		return newError(KindTooLarge, file.Name, fmt.Sprintf("%d bytes exceeds %d", file.Size, MaxFileSize), nil)
	}
	return nil
}

// read loads at most MaxFileSize bytes. Content longer than the limit is
// rejected even when the declared size was within it.
func read(file File) ([]byte, *Error) {
	if file.Open == nil {
		return nil, newError(KindReadFailure, file.Name, "no content", nil)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, newError(KindReadFailure, file.Name, "open", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if file.Size > 0 {
		buf.Grow(int(file.Size))
	}
	n, err := io.Copy(&buf, io.LimitReader(rc, MaxFileSize+1))
	if err != nil {
		return nil, newError(KindReadFailure, file.Name, "read", err)
	}
	if n > MaxFileSize {
		return nil, newError(KindTooLarge, file.Name, fmt.Sprintf("content exceeds %d bytes", MaxFileSize), nil)
	}
	return buf.Bytes(), nil
}
