package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"wastescan/internal/testsupport"
)

type ntfyRecorder struct {
	mu     sync.Mutex
	titles []string
	bodies []string
}

func newNtfyRecorder(t *testing.T) (*ntfyRecorder, string) {
	t.Helper()
	rec := &ntfyRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.titles = append(rec.titles, r.Header.Get("Title"))
		rec.bodies = append(rec.bodies, string(body))
		rec.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return rec, srv.URL + "/bins"
}

func (r *ntfyRecorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...), append([]string(nil), r.bodies...)
}

func TestCLITestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notifications disabled")
}

func TestCLITestNotifySends(t *testing.T) {
	rec, topic := newNtfyRecorder(t)
	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(topic))

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	titles, _ := rec.snapshot()
	if len(titles) != 1 || titles[0] != "Wastescan - Test" {
		t.Fatalf("unexpected pushes %v", titles)
	}
}

func TestCLIClassifyPushesConfidentResult(t *testing.T) {
	rec, topic := newNtfyRecorder(t)
	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(topic))
	image := filepath.Join(env.baseDir, "peel.png")
	testsupport.WriteImage(t, image)

	_, stderr, err := runCLI(t, []string{"classify", image}, env.configPath)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	requireContains(t, stderr, "Classification complete: organik with 90.0% confidence")

	_, bodies := rec.snapshot()
	if len(bodies) != 1 {
		t.Fatalf("expected one push, got %d", len(bodies))
	}
	requireContains(t, bodies[0], "Classification complete: organik with 90.0% confidence")
}
