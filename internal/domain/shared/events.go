// Package shared contains common domain types, errors and events that are used
// across all domain packages.
package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of a progress event.
type EventType string

// Progress event types. Upstream domain code emits the first six; the engine
// emits the rest.
const (
	EventStarEarned      EventType = "star_earned"
	EventLessonCompleted EventType = "lesson_completed"
	EventModuleCompleted EventType = "module_completed"
	EventLevelReached    EventType = "level_reached"
	EventTimeSpent       EventType = "time_spent"
	EventPerfectSeries   EventType = "perfect_series"

	EventQuestCompleted EventType = "quest_completed"
	EventSectionRenewed EventType = "section_renewed"
)

// ProgressEventTypes lists the event types that advance quests.
func ProgressEventTypes() []EventType {
	return []EventType{
		EventStarEarned,
		EventLessonCompleted,
		EventModuleCompleted,
		EventLevelReached,
		EventTimeSpent,
		EventPerfectSeries,
	}
}

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventStarEarned, EventLessonCompleted, EventModuleCompleted,
		EventLevelReached, EventTimeSpent, EventPerfectSeries,
		EventQuestCompleted, EventSectionRenewed:
		return true
	}
	return false
}

// Payload carries the event data. Only the fields relevant to the event type
// are set.
type Payload struct {
	Amount    int    `json:"amount,omitempty"`
	ModuleID  string `json:"module_id,omitempty"`
	Score     int    `json:"score,omitempty"`
	Level     int    `json:"level,omitempty"`
	Minutes   int    `json:"minutes,omitempty"`
	QuestID   string `json:"quest_id,omitempty"`
	SectionID string `json:"section_id,omitempty"`
	Stars     int    `json:"stars,omitempty"`
	XP        int    `json:"xp,omitempty"`
}

// EventMetadata holds envelope data that is not part of the payload.
type EventMetadata struct {
	Timestamp     time.Time `json:"timestamp"`
	ActorID       string    `json:"actor_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Event is the typed envelope delivered through the event bus.
type Event struct {
	ID       string        `json:"id"`
	Type     EventType     `json:"type"`
	Payload  Payload       `json:"payload"`
	Metadata EventMetadata `json:"metadata"`
}

// NewEvent creates a new event stamped with a fresh id and the current time.
func NewEvent(eventType EventType, payload Payload) Event {
	return Event{
		ID:      uuid.New().String(),
		Type:    eventType,
		Payload: payload,
		Metadata: EventMetadata{
			Timestamp: time.Now().UTC(),
		},
	}
}

// ForActor tags the event with the actor it belongs to.
func (e Event) ForActor(actorID string) Event {
	e.Metadata.ActorID = actorID
	return e
}

// WithCorrelationID sets the correlation ID for tracing.
func (e Event) WithCorrelationID(id string) Event {
	e.Metadata.CorrelationID = id
	return e
}

// EventHandler handles a single event. Returned errors are logged by the bus
// and never reach the publisher.
type EventHandler func(ctx context.Context, event Event) error

// EventBus is the publish/subscribe contract used by the engine.
//
// Publish returns only after every handler subscribed to the event type has
// settled, so side effects of handlers are visible to the caller once it
// returns. Publish must not be called concurrently for events whose ordering
// matters.
type EventBus interface {
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func(), err error)
	Publish(ctx context.Context, event Event) error
}
