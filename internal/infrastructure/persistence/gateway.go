package persistence

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
	"github.com/alem-hub/quest-engine/pkg/retry"
)

const (
	// DefaultKeyPrefix prefixes every actor-scoped key.
	DefaultKeyPrefix = "quests:"

	// LegacyKey is the unscoped key used before snapshots were stored per actor.
	LegacyKey = "quests"
)

// GatewayConfig configures a ScopedGateway.
type GatewayConfig struct {
	KeyPrefix string
	LegacyKey string

	// SaveAttempts is the total number of attempts for one save.
	SaveAttempts int
	SaveDelay    time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultGatewayConfig returns sensible defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		KeyPrefix:    DefaultKeyPrefix,
		LegacyKey:    LegacyKey,
		SaveAttempts: 3,
		SaveDelay:    50 * time.Millisecond,
	}
}

// ScopedGateway implements quest.Gateway over a Store. Every record is keyed
// by a digest of the actor id and tagged with its owner.
type ScopedGateway struct {
	store     Store
	prefix    string
	legacyKey string
	retrier   *retry.Retrier
	logger    *slog.Logger
	now       func() time.Time

	migrateOnce sync.Once
}

var _ quest.Gateway = (*ScopedGateway)(nil)

// NewScopedGateway creates a gateway over store.
func NewScopedGateway(store Store, cfg GatewayConfig) *ScopedGateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.LegacyKey == "" {
		cfg.LegacyKey = LegacyKey
	}
	if cfg.SaveAttempts <= 0 {
		cfg.SaveAttempts = 1
	}
	if cfg.SaveDelay <= 0 {
		cfg.SaveDelay = 50 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	logger := cfg.Logger.With("component", "quest_gateway")
	onRetry := func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying snapshot save",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	}

	return &ScopedGateway{
		store:     store,
		prefix:    cfg.KeyPrefix,
		legacyKey: cfg.LegacyKey,
		retrier:   retry.PersistenceRetrier(cfg.SaveAttempts, cfg.SaveDelay, isTransient, retry.WithOnRetry(onRetry)),
		logger:    logger,
		now:       cfg.Now,
	}
}

// Key returns the storage key for an actor.
func (g *ScopedGateway) Key(actorID string) string {
	sum := blake2b.Sum256([]byte(actorID))
	return g.prefix + hex.EncodeToString(sum[:])
}

// Save stores the snapshot for actorID, tagging it with the owner.
func (g *ScopedGateway) Save(ctx context.Context, actorID string, snapshot quest.Snapshot) error {
	if actorID == "" {
		return shared.ErrActorRequired
	}

	snapshot.OwnerActorID = actorID
	if snapshot.LastUpdated.IsZero() {
		snapshot.LastUpdated = g.now()
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return shared.WrapError("persistence", "Save", shared.ErrInvalidFormat, "encode snapshot", err)
	}

	key := g.Key(actorID)
	err = g.retrier.Do(ctx, func(ctx context.Context) error {
		return g.store.Put(ctx, key, data)
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot for actorID. A missing record, or one owned by
// another actor, yields nil. A foreign record is purged.
func (g *ScopedGateway) Load(ctx context.Context, actorID string) (*quest.Snapshot, error) {
	if actorID == "" {
		return nil, shared.ErrActorRequired
	}

	g.migrateLegacy(ctx)

	key := g.Key(actorID)
	data, err := g.store.Get(ctx, key)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snapshot quest.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, shared.WrapError("persistence", "Decode", shared.ErrInvalidFormat, "snapshot cannot be decoded", err)
	}

	if snapshot.OwnerActorID != actorID {
		g.logger.Warn("discarding snapshot owned by another actor",
			"actor_id", actorID,
			"owner_actor_id", snapshot.OwnerActorID,
		)
		if err := g.store.Delete(ctx, key); err != nil {
			g.logger.Error("failed to purge foreign snapshot", "actor_id", actorID, "error", err)
		}
		return nil, nil
	}

	return &snapshot, nil
}

// Clear removes the snapshot for actorID.
func (g *ScopedGateway) Clear(ctx context.Context, actorID string) error {
	if actorID == "" {
		return shared.ErrActorRequired
	}
	if err := g.store.Delete(ctx, g.Key(actorID)); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// migrateLegacy deletes the unscoped record once per gateway lifetime.
func (g *ScopedGateway) migrateLegacy(ctx context.Context) {
	g.migrateOnce.Do(func() {
		_, err := g.store.Get(ctx, g.legacyKey)
		switch {
		case shared.IsNotFound(err):
			return
		case err != nil:
			g.logger.Warn("legacy snapshot check failed", "error", err)
			return
		}

		if err := g.store.Delete(ctx, g.legacyKey); err != nil {
			g.logger.Error("failed to delete legacy snapshot", "error", err)
			return
		}
		g.logger.Info("deleted legacy unscoped snapshot", "key", g.legacyKey)
	})
}

// isTransient reports whether a store error is worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, shared.ErrActorRequired) || errors.Is(err, shared.ErrStoreClosed) {
		return false
	}
	return shared.IsRetryable(err)
}
