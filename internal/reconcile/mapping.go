package reconcile

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"wastescan/internal/apiclient"
	"wastescan/internal/prediction"
)

// Layouts accepted for created_at. The backend stores SQLite CURRENT_TIMESTAMP
// values ("2006-01-02 15:04:05", UTC); ISO forms are accepted as well.
var createdAtLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// labelOf applies the label precedence: class > predicted_class.
func labelOf(item apiclient.HistoryItem) string {
	if label := strings.TrimSpace(item.Class); label != "" {
		return label
	}
	return strings.TrimSpace(item.PredictedClass)
}

// timestampOf applies the timestamp precedence: created_at > timestamp > now.
func timestampOf(item apiclient.HistoryItem, now time.Time) (time.Time, error) {
	if raw := strings.TrimSpace(item.CreatedAt); raw != "" {
		ts, err := parseCreatedAt(raw)
		if err != nil {
			return time.Time{}, err
		}
		return ts, nil
	}
	if raw := strings.TrimSpace(item.Timestamp); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q: %w", raw, err)
		}
		return ts.UTC(), nil
	}
	return now.UTC(), nil
}

// imageOf applies the image precedence: image_data > image.
func imageOf(item apiclient.HistoryItem) string {
	if item.ImageData != "" {
		return item.ImageData
	}
	return item.Image
}

func parseCreatedAt(raw string) (time.Time, error) {
	for _, layout := range createdAtLayouts {
		// Zone-less layouts parse as UTC.
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("created_at %q: unrecognized date-time", raw)
}

// MapItem converts one remote history entry into a Record.
func MapItem(item apiclient.HistoryItem, now time.Time) (prediction.Record, error) {
	label := labelOf(item)
	if label == "" {
		return prediction.Record{}, errors.New("missing class")
	}
	ts, err := timestampOf(item, now)
	if err != nil {
		return prediction.Record{}, err
	}

	rec := prediction.Record{
		Label:       label,
		Confidence:  float64(item.Confidence),
		Image:       imageOf(item),
		Filename:    strings.TrimSpace(item.Filename),
		ContentType: strings.TrimSpace(item.ContentType),
		Timestamp:   ts,
	}
	if item.ID != nil {
		id := *item.ID
		rec.ID = &id
	}
	if len(item.Probabilities) > 0 {
		rec.Probabilities = maps.Clone(item.Probabilities)
	}
	if err := rec.Validate(); err != nil {
		return prediction.Record{}, err
	}
	return rec, nil
}

// MapItems converts every entry, preserving order. Any invalid entry fails the
// whole batch so a partial list never reaches the history store.
func MapItems(items []apiclient.HistoryItem, now time.Time) ([]prediction.Record, error) {
	records := make([]prediction.Record, 0, len(items))
	for i, item := range items {
		rec, err := MapItem(item, now)
		if err != nil {
			return nil, fmt.Errorf("history item %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
