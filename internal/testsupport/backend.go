package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"wastescan/internal/apiclient"
)

// Backend is an in-process fake of the classification service.
type Backend struct {
	Server *httptest.Server

	mu         sync.Mutex
	prediction apiclient.Prediction
	items      []apiclient.HistoryItem
	failNext   int
	uploads    []string
	cleared    int
}

// NewBackend starts a fake backend that classifies every upload as organik
// with confidence 0.9 until told otherwise.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		prediction: apiclient.Prediction{
			Class:         "organik",
			Confidence:    0.9,
			Probabilities: map[string]float64{"organik": 0.9, "anorganik": 0.07, "campuran": 0.03},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", b.handlePredict)
	mux.HandleFunc("GET /history", b.handleHistory)
	mux.HandleFunc("DELETE /history", b.handleClear)
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the base URL of the fake backend.
func (b *Backend) URL() string { return b.Server.URL }

// SetPrediction changes the classification returned for uploads.
func (b *Backend) SetPrediction(p apiclient.Prediction) {
	b.mu.Lock()
	b.prediction = p
	b.mu.Unlock()
}

// SetHistory replaces the remote history.
func (b *Backend) SetHistory(items ...apiclient.HistoryItem) {
	b.mu.Lock()
	b.items = items
	b.mu.Unlock()
}

// FailNext makes the next n requests answer 500.
func (b *Backend) FailNext(n int) {
	b.mu.Lock()
	b.failNext = n
	b.mu.Unlock()
}

// Uploads returns the filenames received by /predict.
func (b *Backend) Uploads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

// Cleared returns how many times the remote history was cleared.
func (b *Backend) Cleared() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cleared
}

func (b *Backend) fail(w http.ResponseWriter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNext > 0 {
		b.failNext--
		http.Error(w, `{"detail":"model unavailable"}`, http.StatusInternalServerError)
		return true
	}
	return false
}

func (b *Backend) handlePredict(w http.ResponseWriter, r *http.Request) {
	if b.fail(w) {
		return
	}
	_, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"detail":"file is required"}`, http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.uploads = append(b.uploads, header.Filename)
	pred := b.prediction
	b.mu.Unlock()
	writeJSON(w, pred)
}

func (b *Backend) handleHistory(w http.ResponseWriter, _ *http.Request) {
	if b.fail(w) {
		return
	}
	b.mu.Lock()
	items := append([]apiclient.HistoryItem{}, b.items...)
	b.mu.Unlock()
	writeJSON(w, apiclient.HistoryResponse{Items: items})
}

func (b *Backend) handleClear(w http.ResponseWriter, _ *http.Request) {
	if b.fail(w) {
		return
	}
	b.mu.Lock()
	b.items = nil
	b.cleared++
	b.mu.Unlock()
	writeJSON(w, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
