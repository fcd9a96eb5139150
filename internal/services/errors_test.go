package services_test

import (
	"errors"
	"strings"
	"testing"

	"wastescan/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrClassification, "session", "classify", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrClassification) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"session", "classify", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestFailureVisibility(t *testing.T) {
	validation := services.Wrap(services.ErrValidation, "ingest", "select", "bad type", nil)
	if !services.Transient(validation) {
		t.Fatal("expected validation error to be transient")
	}
	read := services.Wrap(services.ErrRead, "ingest", "read", "", errors.New("eof"))
	if !services.Transient(read) {
		t.Fatal("expected read error to be transient")
	}
	classify := services.Wrap(services.ErrClassification, "session", "classify", "", nil)
	if services.Transient(classify) || services.Silent(classify) {
		t.Fatal("expected classification error to be persistent and visible")
	}
	reconcile := services.Wrap(services.ErrReconciliation, "reconcile", "fetch", "", nil)
	if !services.Silent(reconcile) {
		t.Fatal("expected reconciliation error to be silent")
	}
}
