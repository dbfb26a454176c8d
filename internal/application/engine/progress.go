package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateQuestsByType adds amount to every active quest of type t across all
// sections. Quests reaching their target complete exactly once; completed
// quests ignore further updates. Metadata tagged for another actor is
// ignored. For level quests amount is the reached level, not a delta.
//
// Only an unknown quest type is reported. Storage and generation failures
// are logged.
func (e *Engine) UpdateQuestsByType(ctx context.Context, t quest.Type, amount int, metadata shared.EventMetadata) error {
	if !t.IsValid() {
		return shared.ErrInvalidQuestType
	}
	if amount <= 0 {
		return nil
	}
	if t == quest.TypeLevelReached {
		e.updateLevel(ctx, amount, metadata)
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "engine.UpdateQuestsByType", trace.WithAttributes(
		attribute.String("quest.type", string(t)),
		attribute.Int("amount", amount),
	))
	defer span.End()

	e.mutate(ctx, metadata, func(actorID string, now time.Time, out *outbox) bool {
		changed := false
		for _, s := range e.sections {
			for _, q := range s.Quests {
				if q.Type != t || !q.IsActive() {
					continue
				}
				before := q.Progress
				if q.Advance(amount, now) {
					e.completeLocked(actorID, q, out)
				}
				changed = changed || q.Progress != before
			}
		}
		return changed
	})
	return nil
}

// UpdateLevelQuests sets the progress of active level quests to level,
// clamped to their target. Progress only moves forward.
func (e *Engine) UpdateLevelQuests(ctx context.Context, level int) {
	e.updateLevel(ctx, level, shared.EventMetadata{})
}

func (e *Engine) updateLevel(ctx context.Context, level int, metadata shared.EventMetadata) {
	ctx, span := e.tracer.Start(ctx, "engine.UpdateLevelQuests", trace.WithAttributes(
		attribute.Int("level", level),
	))
	defer span.End()

	e.mutate(ctx, metadata, func(actorID string, now time.Time, out *outbox) bool {
		return e.raiseLevelLocked(actorID, level, now, out)
	})
}

// mutate runs apply against the sections of the current actor, saves when
// apply reports a change and then renews sections.
func (e *Engine) mutate(ctx context.Context, metadata shared.EventMetadata, apply func(actorID string, now time.Time, out *outbox) bool) {
	e.mu.Lock()
	actorID := e.actorID
	if actorID == "" {
		e.mu.Unlock()
		return
	}
	if metadata.ActorID != "" && metadata.ActorID != actorID {
		e.mu.Unlock()
		e.logger.Debug("ignoring event of another actor",
			"actor_id", actorID,
			"event_actor_id", metadata.ActorID,
			"correlation_id", metadata.CorrelationID,
		)
		return
	}
	if !e.ensureLoadedLocked(ctx, actorID) {
		e.mu.Unlock()
		e.logger.Warn("quests unavailable, progress dropped", "actor_id", actorID)
		return
	}

	var out outbox
	now := e.clock.Now()
	if apply(actorID, now, &out) {
		e.saveLocked(ctx, actorID)
	}
	e.renewLocked(ctx, actorID, now, &out)
	e.mu.Unlock()

	e.flush(ctx, out)
}

func (e *Engine) raiseLevelLocked(actorID string, level int, now time.Time, out *outbox) bool {
	changed := false
	for _, s := range e.sections {
		for _, q := range s.Quests {
			if q.Type != quest.TypeLevelReached || !q.IsActive() {
				continue
			}
			before := q.Progress
			if q.RaiseTo(level, now) {
				e.completeLocked(actorID, q, out)
			}
			changed = changed || q.Progress != before
		}
	}
	return changed
}

// reconcileLevelLocked raises level quests to the level reported by the
// profile source. Progress drifts when the level changed while nobody told
// the engine.
func (e *Engine) reconcileLevelLocked(ctx context.Context, actorID string, now time.Time, out *outbox) {
	if e.profiles == nil || !e.hasActiveLevelQuestLocked() {
		return
	}

	profile, err := e.profiles.Profile(ctx, actorID)
	if err != nil {
		e.logger.Warn("failed to read profile for level reconciliation",
			"actor_id", actorID,
			"error", err,
		)
		return
	}
	if e.raiseLevelLocked(actorID, profile.Level, now, out) {
		e.logger.Debug("level quests reconciled", "actor_id", actorID, "level", profile.Level)
		e.saveLocked(ctx, actorID)
	}
}

func (e *Engine) hasActiveLevelQuestLocked() bool {
	for _, s := range e.sections {
		if s.ActiveTypes()[quest.TypeLevelReached] {
			return true
		}
	}
	return false
}

func (e *Engine) completeLocked(actorID string, q *quest.Quest, out *outbox) {
	e.completed = append(e.completed, q.Clone())
	out.questCompleted(actorID, q)

	e.logger.Info("quest completed",
		"actor_id", actorID,
		"quest_id", q.ID,
		"quest_type", q.Type,
		"section_id", q.SectionID,
		"stars", q.Rewards.Stars,
		"xp", q.Rewards.XP,
	)
}
