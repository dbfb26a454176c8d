package engine

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

var errNoGenerator = errors.New("no section generator configured")

// ══════════════════════════════════════════════════════════════════════════════
// RENEWAL
// ══════════════════════════════════════════════════════════════════════════════

// CheckAndRenewSections replaces sections whose quests are all completed or
// whose cycle ended, and generates sections for scopes the actor has none of.
// A completed section is replaced once; a failed replacement is retried on
// the next check.
func (e *Engine) CheckAndRenewSections(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "engine.CheckAndRenewSections")
	defer span.End()

	e.mutate(ctx, shared.EventMetadata{}, func(string, time.Time, *outbox) bool { return false })
}

type renewalReason string

const (
	reasonNone      renewalReason = ""
	reasonCompleted renewalReason = "completed"
	reasonExpired   renewalReason = "expired"
	reasonMissing   renewalReason = "missing"
)

func reasonFor(s *quest.Section, now time.Time) renewalReason {
	switch {
	case s.IsCompleted():
		return reasonCompleted
	case s.IsExpired(now):
		return reasonExpired
	}
	return reasonNone
}

func (e *Engine) renewLocked(ctx context.Context, actorID string, now time.Time, out *outbox) {
	changed := false

	for _, s := range e.sections {
		if s.MarkCompleted(now) {
			changed = true
			e.logger.Info("section completed", "actor_id", actorID, "section_id", s.ID, "scope", s.Scope)
		}
	}

	for i, s := range e.sections {
		reason := reasonFor(s, now)
		if reason == reasonNone {
			continue
		}

		others := make([]*quest.Section, 0, len(e.sections)-1)
		others = append(others, e.sections[:i]...)
		others = append(others, e.sections[i+1:]...)

		replacement, err := e.generateLocked(ctx, actorID, s.Scope, others, now, reason)
		if err != nil {
			e.logger.Error("failed to renew section",
				"actor_id", actorID,
				"section_id", s.ID,
				"scope", s.Scope,
				"reason", reason,
				"error", err,
			)
			continue
		}

		e.sections[i] = replacement
		changed = true
		out.sectionRenewed(actorID, replacement)
		e.logger.Info("section renewed",
			"actor_id", actorID,
			"previous_section_id", s.ID,
			"section_id", replacement.ID,
			"scope", s.Scope,
			"reason", reason,
			"quests", len(replacement.Quests),
		)
	}

	for _, scope := range quest.AllScopes() {
		if e.hasScopeLocked(scope) {
			continue
		}
		section, err := e.generateLocked(ctx, actorID, scope, slices.Clone(e.sections), now, reasonMissing)
		if err != nil {
			e.logger.Error("failed to generate section",
				"actor_id", actorID,
				"scope", scope,
				"error", err,
			)
			continue
		}
		e.sections = append(e.sections, section)
		changed = true
		e.logger.Info("section generated",
			"actor_id", actorID,
			"section_id", section.ID,
			"scope", scope,
			"quests", len(section.Quests),
		)
	}

	if !changed {
		return
	}
	slices.SortStableFunc(e.sections, func(a, b *quest.Section) int {
		return scopeRank(a.Scope) - scopeRank(b.Scope)
	})
	e.saveLocked(ctx, actorID)
}

func (e *Engine) hasScopeLocked(scope quest.Scope) bool {
	for _, s := range e.sections {
		if s.Scope == scope {
			return true
		}
	}
	return false
}

func scopeRank(scope quest.Scope) int {
	return slices.Index(quest.AllScopes(), scope)
}

// generateLocked asks the primary generator for a section and falls back to
// the template generator when it fails.
func (e *Engine) generateLocked(ctx context.Context, actorID string, scope quest.Scope, others []*quest.Section, now time.Time, reason renewalReason) (*quest.Section, error) {
	ctx, span := e.tracer.Start(ctx, "engine.generateSection", trace.WithAttributes(
		attribute.String("actor.id", actorID),
		attribute.String("scope", string(scope)),
		attribute.String("reason", string(reason)),
	))
	defer span.End()

	req := quest.GenerateRequest{
		ActorID: actorID,
		Scope:   scope,
		Others:  others,
		Now:     now,
	}

	var primaryErr error
	if e.generator != nil {
		section, err := e.generator.Generate(ctx, req)
		if err == nil {
			return section, nil
		}
		primaryErr = err
		e.logger.Warn("personalized generation failed",
			"actor_id", actorID,
			"scope", scope,
			"error", err,
		)
	}

	if e.fallback == nil {
		err := primaryErr
		if err == nil {
			err = errNoGenerator
		}
		recordError(span, err)
		return nil, err
	}

	section, err := e.fallback.Generate(ctx, req)
	if err != nil {
		err = errors.Join(primaryErr, err)
		recordError(span, err)
		return nil, err
	}
	return section, nil
}
