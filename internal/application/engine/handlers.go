package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT HANDLING
// ══════════════════════════════════════════════════════════════════════════════

func (e *Engine) subscribeLocked() error {
	if e.bus == nil {
		return nil
	}

	for _, eventType := range shared.ProgressEventTypes() {
		unsubscribe, err := e.bus.Subscribe(eventType, e.handleEvent)
		if err != nil {
			for _, u := range e.unsubscribe {
				u()
			}
			e.unsubscribe = nil
			return fmt.Errorf("subscribe %s: %w", eventType, err)
		}
		e.unsubscribe = append(e.unsubscribe, unsubscribe)
	}
	return nil
}

// handleEvent routes a progress event to the matching quests. It never
// returns an error: quest bookkeeping must not fail the action that raised
// the event.
func (e *Engine) handleEvent(ctx context.Context, event shared.Event) error {
	ctx, span := e.tracer.Start(ctx, "engine.handleEvent", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
	))
	defer span.End()

	if event.Type == shared.EventLevelReached {
		e.updateLevel(ctx, event.Payload.Level, event.Metadata)
		return nil
	}

	t, ok := quest.TypeForEvent(event.Type)
	if !ok {
		e.logger.Debug("ignoring event", "event_type", event.Type, "event_id", event.ID)
		return nil
	}

	if err := e.UpdateQuestsByType(ctx, t, amountFor(event), event.Metadata); err != nil {
		recordError(span, err)
		e.logger.Warn("failed to apply event",
			"event_type", event.Type,
			"event_id", event.ID,
			"error", err,
		)
	}
	return nil
}

// amountFor returns how much an event advances its quests.
func amountFor(event shared.Event) int {
	switch event.Type {
	case shared.EventStarEarned:
		return event.Payload.Amount
	case shared.EventTimeSpent:
		return event.Payload.Minutes
	}
	return 1
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
