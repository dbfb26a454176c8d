package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// SnapshotStore stores encoded snapshots as plain Redis strings.
type SnapshotStore struct {
	cache *Cache
}

// NewSnapshotStore creates a store over cache.
func NewSnapshotStore(cache *Cache) *SnapshotStore {
	return &SnapshotStore{cache: cache}
}

// Get implements persistence.Store.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.cache.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, fmt.Errorf("redis: %s: %w", key, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("redis: get snapshot: %w", err)
	}
	return data, nil
}

// Put implements persistence.Store. Every write refreshes the TTL.
func (s *SnapshotStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.cache.SetBytes(ctx, key, value, s.cache.config.SnapshotTTL); err != nil {
		return fmt.Errorf("redis: put snapshot: %w", err)
	}
	return nil
}

// Delete implements persistence.Store.
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("redis: delete snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *SnapshotStore) Close() error {
	return s.cache.Close()
}
