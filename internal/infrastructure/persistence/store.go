// Package persistence scopes quest snapshots per actor on top of a raw
// key-value store. Backends live in the memory, sqlite, postgres and redis
// subpackages.
package persistence

import "context"

// Store is a raw key-value store for encoded snapshots.
//
// Get returns an error matching shared.ErrNotFound when the key is absent.
// Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
