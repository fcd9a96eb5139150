package ingest

import (
	"errors"
	"fmt"

	"wastescan/internal/services"
)

// Kind classifies an ingestion rejection.
type Kind int

const (
	KindInvalidType Kind = iota + 1
	KindTooLarge
	KindReadFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidType:
		return "invalid_type"
	case KindTooLarge:
		return "too_large"
	case KindReadFailure:
		return "read_failure"
	default:
		return "unknown"
	}
}

// ErrSuperseded is returned by Select when a newer selection or a removal
// happened while the file was being read.
var ErrSuperseded = errors.New("ingest: selection superseded")

// Error describes why a file was rejected. It wraps services.ErrValidation for
// InvalidType and TooLarge, and services.ErrRead for ReadFailure.
type Error struct {
	Kind Kind
	Name string
	Err  error
}

func newError(kind Kind, name, detail string, cause error) *Error {
	marker := services.ErrValidation
	operation := "validate"
	if kind == KindReadFailure {
		marker = services.ErrRead
		operation = "read"
	}
	return &Error{
		Kind: kind,
		Name: name,
		Err:  services.Wrap(marker, "ingest", operation, detail, cause),
	}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Name == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message returns the text shown to the user.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindInvalidType:
		return "Please upload an image file"
	case KindTooLarge:
		return "File size must be under 10MB"
	case KindReadFailure:
		return "Failed to read file"
	default:
		return "File rejected"
	}
}

// KindOf reports the rejection kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return 0, false
}
