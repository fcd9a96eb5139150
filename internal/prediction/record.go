package prediction

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Labels observed from the classification model. The label set is open:
// records carrying any other label are kept as-is.
const (
	LabelOrganic   = "organik"
	LabelInorganic = "anorganik"
	LabelMixed     = "campuran"
)

// Record is one classification result plus its image and metadata.
// Records are treated as immutable once created; use Clone before handing one
// to code that might retain it.
type Record struct {
	ID            *int64             `json:"id,omitempty"`
	Label         string             `json:"class"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	// Image is either a data URL or a remote reference string.
	Image       string    `json:"image,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return errors.New("label is required")
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	return nil
}

// Clone returns a deep copy that shares no mutable state with r.
func (r Record) Clone() Record {
	out := r
	if r.ID != nil {
		id := *r.ID
		out.ID = &id
	}
	if r.Probabilities != nil {
		out.Probabilities = maps.Clone(r.Probabilities)
	}
	return out
}

// CloneAll deep-copies a record slice. A nil input yields an empty slice so
// snapshots always serialize as a JSON array.
func CloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = rec.Clone()
	}
	return out
}

// EncodeDataURL renders image bytes as a displayable data URL.
func EncodeDataURL(contentType string, data []byte) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL reverses EncodeDataURL. Remote references and other non-data
// values are rejected.
func DecodeDataURL(value string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(value, "data:")
	if !ok {
		return "", nil, errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URL missing payload separator")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL payload: %w", err)
	}
	return contentType, data, nil
}

var titleCaser = cases.Title(language.Und)

// DisplayLabel returns a presentation form of a label ("organik" -> "Organik").
// Empty labels render as "Unknown".
func DisplayLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "Unknown"
	}
	return titleCaser.String(label)
}
