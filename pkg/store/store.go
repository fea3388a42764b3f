// Package store persists registry snapshots across server restarts.
package store

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("store: closed")

// SnapshotStore defines the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Save persists data under key, overwriting any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Load retrieves the data stored under key.
	// Returns (nil, nil) if nothing is stored.
	Load(ctx context.Context, key string) ([]byte, error)

	// Close releases any resources held by the store.
	Close() error
}
