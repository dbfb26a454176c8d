// Package events provides the helpers upstream code uses to report progress.
package events

import (
	"context"
	"log/slog"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// Publisher emits typed progress events on the event bus. Each method returns
// once every subscribed handler has settled.
//
// Failures are logged and returned; callers that only report progress may
// ignore them.
type Publisher struct {
	bus           shared.EventBus
	actorID       string
	correlationID string
	logger        *slog.Logger
}

// NewPublisher creates a publisher for bus.
func NewPublisher(bus shared.EventBus, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		bus:    bus,
		logger: logger.With("component", "quest_events"),
	}
}

// ForActor returns a publisher that tags every event with actorID.
func (p *Publisher) ForActor(actorID string) *Publisher {
	c := *p
	c.actorID = actorID
	return &c
}

// WithCorrelationID returns a publisher that tags every event with id.
func (p *Publisher) WithCorrelationID(id string) *Publisher {
	c := *p
	c.correlationID = id
	return &c
}

// StarEarned reports amount stars earned.
func (p *Publisher) StarEarned(ctx context.Context, amount int) error {
	return p.publish(ctx, shared.EventStarEarned, shared.Payload{Amount: amount})
}

// LessonCompleted reports a finished lesson of a module.
func (p *Publisher) LessonCompleted(ctx context.Context, moduleID string) error {
	return p.publish(ctx, shared.EventLessonCompleted, shared.Payload{ModuleID: moduleID})
}

// ModuleCompleted reports a finished module with its score.
func (p *Publisher) ModuleCompleted(ctx context.Context, moduleID string, score int) error {
	return p.publish(ctx, shared.EventModuleCompleted, shared.Payload{ModuleID: moduleID, Score: score})
}

// LevelReached reports the actor's new level.
func (p *Publisher) LevelReached(ctx context.Context, level int) error {
	return p.publish(ctx, shared.EventLevelReached, shared.Payload{Level: level})
}

// TimeSpent reports minutes spent studying.
func (p *Publisher) TimeSpent(ctx context.Context, minutes int) error {
	return p.publish(ctx, shared.EventTimeSpent, shared.Payload{Minutes: minutes})
}

// PerfectSeries reports a lesson finished without mistakes.
func (p *Publisher) PerfectSeries(ctx context.Context, moduleID string) error {
	return p.publish(ctx, shared.EventPerfectSeries, shared.Payload{ModuleID: moduleID})
}

func (p *Publisher) publish(ctx context.Context, eventType shared.EventType, payload shared.Payload) error {
	event := shared.NewEvent(eventType, payload)
	if p.actorID != "" {
		event = event.ForActor(p.actorID)
	}
	if p.correlationID != "" {
		event = event.WithCorrelationID(p.correlationID)
	}

	if err := p.bus.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish progress event",
			"event_type", eventType,
			"actor_id", p.actorID,
			"error", err,
		)
		return err
	}
	return nil
}
