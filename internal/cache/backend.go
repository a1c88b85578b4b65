package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Load when no entry exists for a key.
var ErrNotFound = errors.New("cache entry not found")

// Backend persists entries. Load returns ErrNotFound for a missing key and a
// *CorruptEntryError for a record that exists but cannot be decoded.
type Backend interface {
	Load(ctx context.Context, key string) (Entry, error)
	Save(ctx context.Context, e Entry) error
	// List returns every readable entry. Unreadable records are reported
	// through the joined error alongside the readable ones.
	List(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
	Close() error
}
