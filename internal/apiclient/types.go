package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Prediction is the classifier's success response.
type Prediction struct {
	Class         string             `json:"class"`
	Confidence    FlexFloat          `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
}

// HistoryItem is one remote history entry. Several fields have alternates
// (class/predicted_class, created_at/timestamp, image_data/image); which one
// wins is decided by the reconcile package, not here.
type HistoryItem struct {
	ID             *int64             `json:"id,omitempty"`
	Class          string             `json:"class,omitempty"`
	PredictedClass string             `json:"predicted_class,omitempty"`
	Confidence     FlexFloat          `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities,omitempty"`
	CreatedAt      string             `json:"created_at,omitempty"`
	Timestamp      string             `json:"timestamp,omitempty"`
	ImageData      string             `json:"image_data,omitempty"`
	Image          string             `json:"image,omitempty"`
	Filename       string             `json:"filename,omitempty"`
	ContentType    string             `json:"content_type,omitempty"`
}

// FlexFloat decodes a JSON number or a numeric string. null decodes as 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("confidence %q is not a number", s)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, body)
}
