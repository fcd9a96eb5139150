package kvstore

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Store is the local key-value persistence used by the history cache.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	// Set overwrites the value for key.
	Set(key string, value []byte) error
	// Clear removes the key. Clearing a missing key is not an error.
	Clear(key string) error
}

// UpdateFunc computes the next value for a key from its current value.
// Returning an error aborts the update and leaves the stored value untouched.
type UpdateFunc func(current []byte, ok bool) ([]byte, error)

// Updater is a Store that can read and rewrite a key as one step, excluding
// writers in other goroutines and, for on-disk backends, other processes.
type Updater interface {
	Update(key string, fn UpdateFunc) error
}

// Update applies fn atomically when store implements Updater. Other stores
// get a plain Get followed by Set.
func Update(store Store, key string, fn UpdateFunc) error {
	if u, ok := store.(Updater); ok {
		return u.Update(key, fn)
	}
	current, ok, err := store.Get(key)
	if err != nil {
		return err
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	return store.Set(key, next)
}

// Backend is a Store that holds external resources.
type Backend interface {
	Store
	io.Closer
}

// Backend names accepted by Open.
const (
	KindMemory = "memory"
	KindJSON   = "json"
	KindSQLite = "sqlite"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrInvalidKey is returned for empty keys or keys with unsupported characters.
var ErrInvalidKey = errors.New("invalid key")

func checkKey(key string) error {
	if !validKey.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Open constructs a backend by kind. path is a directory for the JSON backend
// and a database file for SQLite; it is ignored for memory.
func Open(kind, path string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindMemory:
		return NewMemory(), nil
	case KindJSON, "":
		return OpenFileStore(path)
	case KindSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", kind)
	}
}
