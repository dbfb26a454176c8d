// Package messaging implements the in-process event bus that carries progress
// events from upstream domain code to the quest engine.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// DefaultHistorySize is the number of recent events kept for diagnostics.
const DefaultHistorySize = 100

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is reported when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

type subscription struct {
	id      uint64
	handler shared.EventHandler
}

// InMemoryEventBus dispatches events to the handlers subscribed for their
// type. Publish runs all handlers concurrently and returns once every one of
// them has settled. Handler errors and panics are logged and never reach the
// publisher.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[shared.EventType][]subscription
	nextID   uint64
	closed   bool

	history *history
	logger  *slog.Logger
	metrics *EventBusMetrics
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// HistorySize is the capacity of the diagnostics ring buffer.
	HistorySize int

	// Logger for structured logging
	Logger *slog.Logger

	// EnableMetrics enables metrics collection
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		HistorySize:   DefaultHistorySize,
		EnableMetrics: true,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}

	bus := &InMemoryEventBus{
		handlers: make(map[shared.EventType][]subscription),
		history:  newHistory(config.HistorySize),
		logger:   config.Logger.With("component", "event_bus"),
	}
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}
	return bus
}

// Subscribe registers a handler for an event type. The returned function
// removes the subscription and is safe to call more than once.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) (func(), error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrEventBusClosed
	}

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.logger.Debug("subscribed handler", "event_type", eventType, "subscription_id", id)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}, nil
}

func (b *InMemoryEventBus) unsubscribe(eventType shared.EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id != id {
			continue
		}
		// Copy so in-flight publishes keep their own slice.
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, eventType)
		} else {
			b.handlers[eventType] = next
		}
		b.logger.Debug("unsubscribed handler", "event_type", eventType, "subscription_id", id)
		return
	}
}

// Publish delivers the event to every handler subscribed for its type and
// waits for all of them to settle.
func (b *InMemoryEventBus) Publish(ctx context.Context, event shared.Event) error {
	if event.Type == "" {
		return fmt.Errorf("publish: %w", shared.ErrEmptyValue)
	}
	if event.Metadata.Timestamp.IsZero() {
		event.Metadata.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	subs := b.handlers[event.Type]
	b.mu.RUnlock()

	b.history.add(event)
	if b.metrics != nil {
		b.metrics.RecordPublish(event.Type)
	}

	if len(subs) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.Type)
		return nil
	}

	var g errgroup.Group
	for _, s := range subs {
		g.Go(func() error {
			if err := b.execute(ctx, event, s.handler); err != nil {
				b.logger.Error("handler error",
					"event_type", event.Type,
					"event_id", event.ID,
					"subscription_id", s.id,
					"error", err,
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// execute runs one handler, converting panics into errors.
func (b *InMemoryEventBus) execute(ctx context.Context, event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrHandlerPanic, p, debug.Stack())
		}
		if b.metrics != nil {
			b.metrics.RecordHandlerExecution(event.Type, time.Since(start), err == nil)
		}
	}()
	return handler(ctx, event)
}

// History returns the most recent events, oldest first.
func (b *InMemoryEventBus) History() []shared.Event {
	return b.history.snapshot()
}

// HandlerCount returns the number of handlers subscribed for an event type.
func (b *InMemoryEventBus) HandlerCount(eventType shared.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Close drops all subscriptions. Subsequent calls are no-ops.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.handlers = make(map[shared.EventType][]subscription)

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the current metrics.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// history is a fixed-size ring buffer of events.
type history struct {
	mu     sync.Mutex
	events []shared.Event
	next   int
	full   bool
}

func newHistory(size int) *history {
	return &history{events: make([]shared.Event, size)}
}

func (h *history) add(event shared.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[h.next] = event
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) snapshot() []shared.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		out := make([]shared.Event, h.next)
		copy(out, h.events[:h.next])
		return out
	}
	out := make([]shared.Event, 0, len(h.events))
	out = append(out, h.events[h.next:]...)
	out = append(out, h.events[:h.next]...)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks event bus performance metrics.
type EventBusMetrics struct {
	mu sync.RWMutex

	PublishedTotal map[shared.EventType]int64

	HandlerExecutions    int64
	HandlerSuccesses     int64
	HandlerFailures      int64
	HandlerTotalDuration time.Duration
	HandlersByType       map[shared.EventType]int64

	LastReset time.Time
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		PublishedTotal: make(map[shared.EventType]int64),
		HandlersByType: make(map[shared.EventType]int64),
		LastReset:      time.Now(),
	}
}

// RecordPublish records a publish event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishedTotal[eventType]++
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(eventType shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandlerExecutions++
	m.HandlerTotalDuration += duration
	m.HandlersByType[eventType]++

	if success {
		m.HandlerSuccesses++
	} else {
		m.HandlerFailures++
	}
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgDuration := time.Duration(0)
	if m.HandlerExecutions > 0 {
		avgDuration = m.HandlerTotalDuration / time.Duration(m.HandlerExecutions)
	}

	var published int64
	for _, v := range m.PublishedTotal {
		published += v
	}

	rate := 1.0
	if m.HandlerExecutions > 0 {
		rate = float64(m.HandlerSuccesses) / float64(m.HandlerExecutions)
	}

	return EventBusMetricsSnapshot{
		TotalPublished:         published,
		TotalHandlerExecs:      m.HandlerExecutions,
		HandlerFailures:        m.HandlerFailures,
		HandlerSuccessRate:     rate,
		AverageHandlerDuration: avgDuration,
		LastReset:              m.LastReset,
	}
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	TotalHandlerExecs      int64
	HandlerFailures        int64
	HandlerSuccessRate     float64
	AverageHandlerDuration time.Duration
	LastReset              time.Time
}
