package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"

	"wastescan/internal/ingest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type dropped struct {
	path    string
	preview ingest.Preview
}

func startWatcher(t *testing.T, dir string, handler Handler) (*Watcher, *ingest.Pipeline, func()) {
	t.Helper()
	pipeline := ingest.NewPipeline(nil, ingest.WithResetDelay(10*time.Millisecond))
	w, err := New(dir, pipeline, handler, nil, WithDebounce(30*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// Give fsnotify time to register the directory.
	time.Sleep(50 * time.Millisecond)
	return w, pipeline, func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
		pipeline.Close()
	}
}

func TestWatcherFeedsImagesToHandler(t *testing.T) {
	dir := t.TempDir()
	got := make(chan dropped, 4)
	w, pipeline, stop := startWatcher(t, dir, func(_ context.Context, path string, p ingest.Preview) error {
		got <- dropped{path: path, preview: p}
		return nil
	})
	defer stop()

	path := filepath.Join(dir, "can.png")
	if err := os.WriteFile(path, []byte("fake png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case d := <-got:
		if d.path != path || d.preview.ContentType != "image/png" || string(d.preview.Data) != "fake png" {
			t.Fatalf("unexpected drop %+v", d)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dropped file")
	}

	if pipeline.Dragging() {
		t.Fatal("drop should reset the drag counter")
	}
	if st := w.Stats(); st.Accepted != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestWatcherRejectsNonImages(t *testing.T) {
	dir := t.TempDir()
	got := make(chan dropped, 4)
	w, _, stop := startWatcher(t, dir, func(_ context.Context, path string, p ingest.Preview) error {
		got <- dropped{path: path, preview: p}
		return nil
	})
	defer stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden.png"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for w.Stats().Rejected == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if st := w.Stats(); st.Rejected != 1 || st.Accepted != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
	select {
	case d := <-got:
		t.Fatalf("handler should not be called, got %+v", d)
	default:
	}
}

func TestNewRejectsMissingDirectory(t *testing.T) {
	pipeline := ingest.NewPipeline(nil)
	defer pipeline.Close()
	handler := func(context.Context, string, ingest.Preview) error { return nil }

	if _, err := New(filepath.Join(t.TempDir(), "missing"), pipeline, handler, nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
	if _, err := New(t.TempDir(), nil, handler, nil); err == nil {
		t.Fatal("expected error for nil pipeline")
	}
}
