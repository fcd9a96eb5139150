package ingest

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wastescan/internal/services"
)

func waitForState(t *testing.T, p *Pipeline, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", p.State(), want)
}

func TestSelectRejectsNonImage(t *testing.T) {
	p := NewPipeline(nil)
	defer p.Close()

	_, err := p.Select(NewFile("report.pdf", "application/pdf", []byte("%PDF-1.4")))
	if kind, ok := KindOf(err); !ok || kind != KindInvalidType {
		t.Fatalf("expected InvalidType, got %v", err)
	}
	if !errors.Is(err, services.ErrValidation) || !services.Transient(err) {
		t.Fatalf("expected transient validation error, got %v", err)
	}
	if p.State() != StateRejected {
		t.Fatalf("state = %s, want rejected", p.State())
	}
	if p.ErrorMessage() != "Please upload an image file" {
		t.Fatalf("unexpected message %q", p.ErrorMessage())
	}
}

func TestSelectSizeBoundary(t *testing.T) {
	p := NewPipeline(nil)
	defer p.Close()

	exact := make([]byte, MaxFileSize)
	preview, err := p.Select(NewFile("exact.png", "image/png", exact))
	if err != nil {
		t.Fatalf("exactly 10 MiB should be accepted: %v", err)
	}
	if int64(len(preview.Data)) != MaxFileSize {
		t.Fatalf("preview holds %d bytes", len(preview.Data))
	}
	if p.State() != StateReady {
		t.Fatalf("state = %s, want ready", p.State())
	}

	over := make([]byte, MaxFileSize+1)
	_, err = p.Select(NewFile("over.png", "image/png", over))
	if kind, ok := KindOf(err); !ok || kind != KindTooLarge {
		t.Fatalf("expected TooLarge, got %v", err)
	}
	if _, ok := p.Preview(); ok {
		t.Fatal("rejected selection should clear the preview")
	}
}

func TestSelectRejectsContentLongerThanDeclared(t *testing.T) {
	p := NewPipeline(nil)
	defer p.Close()

	file := NewFile("liar.png", "image/png", make([]byte, MaxFileSize+10))
	file.Size = 100
	_, err := p.Select(file)
	if kind, ok := KindOf(err); !ok || kind != KindTooLarge {
		t.Fatalf("expected TooLarge, got %v", err)
	}
}

func TestSelectReadFailure(t *testing.T) {
	p := NewPipeline(nil)
	defer p.Close()

	file := File{
		Name:        "broken.jpg",
		ContentType: "image/jpeg",
		Size:        10,
		Open: func() (io.ReadCloser, error) {
			return nil, errors.New("permission denied")
		},
	}
	_, err := p.Select(file)
	if kind, ok := KindOf(err); !ok || kind != KindReadFailure {
		t.Fatalf("expected ReadFailure, got %v", err)
	}
	if !errors.Is(err, services.ErrRead) {
		t.Fatalf("expected read marker, got %v", err)
	}
	if p.ErrorMessage() != "Failed to read file" {
		t.Fatalf("unexpected message %q", p.ErrorMessage())
	}
}

func TestSelectProducesDataURLAndCallback(t *testing.T) {
	var gotFile File
	var gotPreview Preview
	p := NewPipeline(nil, WithOnReady(func(f File, pv Preview) {
		gotFile, gotPreview = f, pv
	}))
	defer p.Close()

	preview, err := p.Select(NewFile("can.png", "image/png", []byte{0x89, 'P', 'N', 'G'}))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !strings.HasPrefix(preview.DataURL, "data:image/png;base64,") {
		t.Fatalf("unexpected data URL %q", preview.DataURL)
	}
	if gotFile.Name != "can.png" || gotPreview.DataURL != preview.DataURL {
		t.Fatalf("callback not invoked with the preview: %+v", gotPreview)
	}
}

func TestRejectedReturnsToIdleAfterDelay(t *testing.T) {
	p := NewPipeline(nil, WithResetDelay(20*time.Millisecond))
	defer p.Close()

	if _, err := p.Select(NewFile("a.txt", "text/plain", []byte("x"))); err == nil {
		t.Fatal("expected rejection")
	}
	waitForState(t, p, StateIdle)
	if p.ErrorMessage() == "" {
		t.Fatal("message should outlive the rejected state")
	}
}

func TestStaleResetDoesNotClobberNewerSelection(t *testing.T) {
	p := NewPipeline(nil, WithResetDelay(30*time.Millisecond))
	defer p.Close()

	if _, err := p.Select(NewFile("a.txt", "text/plain", []byte("x"))); err == nil {
		t.Fatal("expected rejection")
	}
	if _, err := p.Select(NewFile("b.png", "image/png", []byte("png"))); err != nil {
		t.Fatalf("Select: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if p.State() != StateReady {
		t.Fatalf("state = %s, want ready", p.State())
	}
}

func TestRemoveClearsMessageAndPreview(t *testing.T) {
	p := NewPipeline(nil)
	defer p.Close()

	if _, err := p.Select(NewFile("a.gif", "application/octet-stream", nil)); err == nil {
		t.Fatal("expected rejection")
	}
	p.Remove()
	if p.State() != StateIdle || p.ErrorMessage() != "" {
		t.Fatalf("state=%s message=%q after Remove", p.State(), p.ErrorMessage())
	}

	if _, err := p.Select(NewFile("b.png", "image/png", []byte("png"))); err != nil {
		t.Fatalf("Select: %v", err)
	}
	p.Remove()
	if _, ok := p.Preview(); ok {
		t.Fatal("preview should be cleared")
	}
}

func TestDragCounter(t *testing.T) {
	p := NewPipeline(nil)
	defer p.Close()

	p.DragLeave()
	if p.Dragging() {
		t.Fatal("spurious leave must not produce dragging state")
	}
	p.DragEnter()
	p.DragEnter()
	p.DragLeave()
	if !p.Dragging() {
		t.Fatal("nested enter should keep dragging")
	}
	if _, err := p.Drop(NewFile("c.png", "image/png", []byte("png"))); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if p.Dragging() {
		t.Fatal("drop must reset the counter")
	}
	p.DragLeave()
	p.DragEnter()
	if !p.Dragging() {
		t.Fatal("counter should restart from zero after drop")
	}
}

func TestSelectAfterCloseFails(t *testing.T) {
	p := NewPipeline(nil)
	p.Close()
	if _, err := p.Select(NewFile("a.png", "image/png", []byte("x"))); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestFileFromPath(t *testing.T) {
	dir := t.TempDir()

	pngPath := filepath.Join(dir, "bottle.PNG")
	if err := os.WriteFile(pngPath, []byte("not really a png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := FileFromPath(pngPath)
	if err != nil {
		t.Fatalf("FileFromPath: %v", err)
	}
	if f.ContentType != "image/png" || f.Name != "bottle.PNG" || f.Size != 16 {
		t.Fatalf("unexpected file %+v", f)
	}

	// No extension: falls back to sniffing.
	gifData := append([]byte("GIF89a"), bytes.Repeat([]byte{0}, 20)...)
	rawPath := filepath.Join(dir, "capture")
	if err := os.WriteFile(rawPath, gifData, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err = FileFromPath(rawPath)
	if err != nil {
		t.Fatalf("FileFromPath: %v", err)
	}
	if f.ContentType != "image/gif" {
		t.Fatalf("sniffed %q, want image/gif", f.ContentType)
	}

	p := NewPipeline(nil)
	defer p.Close()
	preview, err := p.Select(f)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !bytes.Equal(preview.Data, gifData) {
		t.Fatal("preview bytes differ from file content")
	}

	if _, err := FileFromPath(dir); err == nil {
		t.Fatal("expected error for directory")
	}
}
