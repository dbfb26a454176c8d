package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// SnapshotStore implements persistence.Store on the quest_snapshots table.
type SnapshotStore struct {
	conn *Connection
}

// NewSnapshotStore creates a store over conn. Call Migrator.Migrate first.
func NewSnapshotStore(conn *Connection) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Get implements persistence.Store.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.conn.IsClosed() {
		return nil, shared.ErrStoreClosed
	}

	var payload []byte
	err := s.conn.QueryRow(ctx, `SELECT payload FROM quest_snapshots WHERE key = $1`, key).Scan(&payload)
	if err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("postgres: %s: %w", key, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: get snapshot: %w", err)
	}
	return payload, nil
}

// Put implements persistence.Store.
func (s *SnapshotStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO quest_snapshots (key, payload)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`, key, string(value))
	if err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return shared.ErrStoreClosed
		}
		return fmt.Errorf("postgres: put snapshot: %w", err)
	}
	return nil
}

// Delete implements persistence.Store.
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM quest_snapshots WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return shared.ErrStoreClosed
		}
		return fmt.Errorf("postgres: delete snapshot: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *SnapshotStore) Close() error {
	s.conn.Close()
	return nil
}
