package gate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
)

// DefaultThreshold is the initial celebration threshold.
const DefaultThreshold = 0.8

// Decision is the outcome of evaluating one classification.
type Decision struct {
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	Threshold    float64 `json:"threshold"`
	Celebrate    bool    `json:"celebrate"`
	Announcement string  `json:"announcement,omitempty"`
}

// Announcer delivers assistive announcements.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// AnnouncerFunc adapts a function to Announcer.
type AnnouncerFunc func(ctx context.Context, text string) error

func (f AnnouncerFunc) Announce(ctx context.Context, text string) error { return f(ctx, text) }

// Gate decides whether a result is confident enough to celebrate.
type Gate struct {
	mu        sync.RWMutex
	threshold float64
}

// New returns a gate with threshold clamped into [0,1].
func New(threshold float64) *Gate {
	return &Gate{threshold: Clamp(threshold)}
}

// Clamp bounds a threshold to [0,1]. NaN becomes 0.
func Clamp(threshold float64) float64 {
	if math.IsNaN(threshold) {
		return 0
	}
	return math.Min(1, math.Max(0, threshold))
}

// SetThreshold updates the threshold and returns the effective value.
func (g *Gate) SetThreshold(threshold float64) float64 {
	clamped := Clamp(threshold)
	g.mu.Lock()
	g.threshold = clamped
	g.mu.Unlock()
	return clamped
}

// Threshold returns the current threshold.
func (g *Gate) Threshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// Evaluate celebrates when confidence >= threshold. The announcement is only
// set when celebrating.
func (g *Gate) Evaluate(label string, confidence float64) Decision {
	threshold := g.Threshold()
	d := Decision{
		Label:      label,
		Confidence: confidence,
		Threshold:  threshold,
		Celebrate:  confidence >= threshold,
	}
	if d.Celebrate {
		d.Announcement = Announcement(label, confidence)
	}
	return d
}

// Announcement renders the completion message for a result.
func Announcement(label string, confidence float64) string {
	return fmt.Sprintf("Classification complete: %s with %s%% confidence", label, FormatPercent(confidence))
}

// FormatPercent renders a [0,1] confidence as a percentage with one decimal,
// rounding half up.
func FormatPercent(confidence float64) string {
	rounded := math.Floor(confidence*1000+0.5) / 10
	return strconv.FormatFloat(rounded, 'f', 1, 64)
}

// Notify announces a celebrating decision. Non-celebrating decisions and a nil
// announcer are no-ops.
func Notify(ctx context.Context, d Decision, announcer Announcer) error {
	if !d.Celebrate || announcer == nil || d.Announcement == "" {
		return nil
	}
	return announcer.Announce(ctx, d.Announcement)
}
