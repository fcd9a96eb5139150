package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"wastescan/internal/testsupport"
)

func TestCLIHistoryImageWritesClassifiedBytes(t *testing.T) {
	env := setupCLITestEnv(t)
	image := filepath.Join(env.baseDir, "banana.png")
	want := testsupport.WriteImage(t, image)

	if _, _, err := runCLI(t, []string{"classify", image}, env.configPath); err != nil {
		t.Fatalf("classify: %v", err)
	}

	outDir := filepath.Join(env.baseDir, "exported")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	out, _, err := runCLI(t, []string{"history", "image", "1", "--out", outDir}, env.configPath)
	if err != nil {
		t.Fatalf("history image: %v", err)
	}
	target := filepath.Join(outDir, "banana.png")
	requireContains(t, out, "Saved "+target)

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read exported image: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("exported bytes differ from the classified file: got %d bytes want %d", len(got), len(want))
	}

	if _, _, err := runCLI(t, []string{"history", "image", "1", "--out", outDir}, env.configPath); err == nil {
		t.Fatal("expected refusal to overwrite without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"history", "image", "1", "--out", outDir, "--overwrite"}, env.configPath); err != nil {
		t.Fatalf("history image --overwrite: %v", err)
	}
}

func TestCLIHistoryImageDefaultsToScanJPG(t *testing.T) {
	env := setupCLITestEnv(t)
	kv := testsupport.MustOpenStore(t, env.cfg)
	rec := testsupport.NewRecord("organik", 0.9, 0)
	rec.Image = "data:image/jpeg;base64,/9j/AA=="
	testsupport.SeedHistory(t, kv, 20, rec)

	outDir := filepath.Join(env.baseDir, "downloads")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, _, err := runCLI(t, []string{"history", "image", "1", "-o", outDir}, env.configPath); err != nil {
		t.Fatalf("history image: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "scan.jpg"))
	if err != nil {
		t.Fatalf("read scan.jpg: %v", err)
	}
	if !bytes.Equal(got, []byte{0xff, 0xd8, 0xff, 0x00}) {
		t.Fatalf("unexpected bytes %x", got)
	}
}

func TestCLIHistoryImageRejectsRemoteReference(t *testing.T) {
	env := setupCLITestEnv(t)
	kv := testsupport.MustOpenStore(t, env.cfg)
	rec := testsupport.NewRecord("anorganik", 0.7, 0)
	rec.Filename = "bottle.jpg"
	rec.Image = "uploads/bottle.jpg"
	testsupport.SeedHistory(t, kv, 20, rec)

	target := filepath.Join(env.baseDir, "bottle.jpg")
	_, _, err := runCLI(t, []string{"history", "image", "1", "--out", target}, env.configPath)
	if err == nil {
		t.Fatal("expected error for remote image reference")
	}
	requireContains(t, err.Error(), "remote reference")
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Fatalf("expected no file to be written, stat err=%v", statErr)
	}

	if _, _, err := runCLI(t, []string{"history", "image", "2"}, env.configPath); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
