// Package engine contains the quest engine: it owns the sections of the
// signed-in actor, advances quests from progress events, persists the state
// and renews sections when they complete or expire.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
	"github.com/alem-hub/quest-engine/pkg/timeutil"
)

const tracerName = "github.com/alem-hub/quest-engine/internal/application/engine"

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Options contains the collaborators of the engine.
type Options struct {
	Bus     shared.EventBus
	Gateway quest.Gateway

	// Generator builds initial and replacement sections.
	Generator quest.SectionGenerator
	// Fallback is used when Generator fails. Optional.
	Fallback quest.SectionGenerator

	// Actors resolves the actor when Initialize is called without one.
	Actors quest.ActorResolver
	// Profiles reports the actor's true level for level reconciliation.
	Profiles quest.ProfileSource

	Clock  timeutil.Clock
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Engine tracks the quests of one actor at a time.
//
// All state changes happen under mu, including the persistence calls, so two
// events never interleave their read-modify-write. Events produced while
// holding mu are published after it is released.
type Engine struct {
	bus       shared.EventBus
	gateway   quest.Gateway
	generator quest.SectionGenerator
	fallback  quest.SectionGenerator
	actors    quest.ActorResolver
	profiles  quest.ProfileSource
	clock     timeutil.Clock
	tracer    trace.Tracer
	logger    *slog.Logger

	mu          sync.Mutex
	actorID     string
	loaded      bool
	sections    []*quest.Section
	completed   []*quest.Quest
	unsubscribe []func()
}

// New creates an engine. It does nothing until Initialize is called.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	return &Engine{
		bus:       opts.Bus,
		gateway:   opts.Gateway,
		generator: opts.Generator,
		fallback:  opts.Fallback,
		actors:    opts.Actors,
		profiles:  opts.Profiles,
		clock:     opts.Clock,
		tracer:    opts.Tracer,
		logger:    opts.Logger.With("component", "quest_engine"),
	}
}

// ActorID returns the actor the engine is initialized for, or "".
func (e *Engine) ActorID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.actorID
}

// Initialize loads or creates the quest state of actorID and subscribes to
// progress events. An empty actorID is resolved through the ActorResolver;
// when no actor can be resolved Initialize is a no-op. Calling it again for
// the same actor is a no-op, for another actor it tears down first.
//
// Storage and generation failures are logged and leave the engine with an
// empty state. Only a failed subscription is returned.
func (e *Engine) Initialize(ctx context.Context, actorID string) error {
	ctx, span := e.tracer.Start(ctx, "engine.Initialize")
	defer span.End()

	e.mu.Lock()
	if actorID == "" {
		actorID = e.resolveActor(ctx)
	}
	if actorID == "" {
		e.mu.Unlock()
		e.logger.Debug("no actor resolved, skipping initialization")
		return nil
	}
	span.SetAttributes(attribute.String("actor.id", actorID))

	if e.actorID == actorID {
		e.mu.Unlock()
		return nil
	}
	if e.actorID != "" {
		e.logger.Info("actor changed, tearing down", "previous_actor_id", e.actorID, "actor_id", actorID)
		e.teardownLocked()
	}

	if err := e.subscribeLocked(); err != nil {
		e.mu.Unlock()
		recordError(span, err)
		e.logger.Error("failed to subscribe to progress events", "actor_id", actorID, "error", err)
		return err
	}
	e.actorID = actorID

	var out outbox
	e.loadLocked(ctx, actorID)
	if e.loaded {
		now := e.clock.Now()
		e.reconcileLevelLocked(ctx, actorID, now, &out)
		e.renewLocked(ctx, actorID, now, &out)
	}
	sections := len(e.sections)
	e.mu.Unlock()

	e.flush(ctx, out)
	e.logger.Info("engine initialized", "actor_id", actorID, "sections", sections)
	return nil
}

// Deinitialize unsubscribes from events and forgets the actor and its state.
// It is safe to call more than once.
func (e *Engine) Deinitialize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.actorID != "" {
		e.logger.Info("engine deinitialized", "actor_id", e.actorID)
	}
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	for _, unsubscribe := range e.unsubscribe {
		unsubscribe()
	}
	e.unsubscribe = nil
	e.actorID = ""
	e.loaded = false
	e.sections = nil
	e.completed = nil
}

func (e *Engine) resolveActor(ctx context.Context) string {
	if e.actors == nil {
		return ""
	}
	actorID, err := e.actors.CurrentActorID(ctx)
	if err != nil {
		e.logger.Warn("failed to resolve current actor", "error", err)
		return ""
	}
	return actorID
}

// LoadQuests re-reads the persisted state of the current actor, replacing
// the in-memory sections.
func (e *Engine) LoadQuests(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "engine.LoadQuests")
	defer span.End()

	e.mu.Lock()
	actorID := e.actorID
	if actorID == "" {
		e.mu.Unlock()
		return
	}
	span.SetAttributes(attribute.String("actor.id", actorID))

	var out outbox
	e.loadLocked(ctx, actorID)
	if e.loaded {
		now := e.clock.Now()
		e.reconcileLevelLocked(ctx, actorID, now, &out)
		e.renewLocked(ctx, actorID, now, &out)
	}
	e.mu.Unlock()

	e.flush(ctx, out)
}

// loadLocked replaces the sections with the persisted snapshot. A missing,
// foreign or undecodable snapshot leaves no sections, which renewLocked then
// generates. A storage error leaves the engine unloaded so the next
// operation retries.
func (e *Engine) loadLocked(ctx context.Context, actorID string) {
	e.sections = nil

	snapshot, err := e.gateway.Load(ctx, actorID)
	switch {
	case errors.Is(err, shared.ErrInvalidFormat):
		e.logger.Error("discarding undecodable quests", "actor_id", actorID, "error", err)
		if err := e.gateway.Clear(ctx, actorID); err != nil {
			e.logger.Warn("failed to clear undecodable quests", "actor_id", actorID, "error", err)
		}
		e.loaded = true
		return
	case err != nil:
		e.loaded = false
		e.logger.Error("failed to load quests", "actor_id", actorID, "error", err)
		return
	}
	e.loaded = true

	if snapshot == nil {
		e.logger.Debug("no persisted quests", "actor_id", actorID)
		return
	}
	if snapshot.OwnerActorID != "" && snapshot.OwnerActorID != actorID {
		e.logger.Warn("discarding snapshot",
			"actor_id", actorID,
			"owner_actor_id", snapshot.OwnerActorID,
			"error", shared.ErrActorMismatch,
		)
		return
	}

	seen := make(map[quest.Scope]bool, 2)
	for _, s := range snapshot.Sections {
		if s == nil || !s.Scope.IsValid() || seen[s.Scope] {
			continue
		}
		seen[s.Scope] = true
		e.sections = append(e.sections, s)
	}
}

// ensureLoadedLocked retries a failed load. It reports whether the engine
// holds a trustworthy state for actorID.
func (e *Engine) ensureLoadedLocked(ctx context.Context, actorID string) bool {
	if e.loaded {
		return true
	}
	e.loadLocked(ctx, actorID)
	return e.loaded
}

// saveLocked persists the sections for actorID. The save is dropped when the
// engine no longer belongs to actorID.
func (e *Engine) saveLocked(ctx context.Context, actorID string) {
	if actorID == "" || actorID != e.actorID {
		e.logger.Warn("dropping save for inactive actor", "actor_id", actorID)
		return
	}

	snapshot := quest.Snapshot{
		Sections:     e.sections,
		OwnerActorID: actorID,
		LastUpdated:  e.clock.Now(),
	}
	if err := e.gateway.Save(ctx, actorID, snapshot); err != nil {
		e.logger.Error("failed to save quests, keeping in-memory state",
			"actor_id", actorID,
			"error", err,
		)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// GetSections returns a copy of the current sections. Level quests are
// reconciled with the actor's true level first.
func (e *Engine) GetSections(ctx context.Context) []*quest.Section {
	return e.read(ctx, "engine.GetSections")
}

// GetActiveQuests returns copies of the quests that still accept progress.
func (e *Engine) GetActiveQuests(ctx context.Context) []*quest.Quest {
	sections := e.read(ctx, "engine.GetActiveQuests")

	var active []*quest.Quest
	for _, s := range sections {
		active = append(active, s.ActiveQuests()...)
	}
	return active
}

func (e *Engine) read(ctx context.Context, op string) []*quest.Section {
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	e.mu.Lock()
	actorID := e.actorID
	if actorID == "" {
		e.mu.Unlock()
		return nil
	}
	span.SetAttributes(attribute.String("actor.id", actorID))

	var out outbox
	if e.ensureLoadedLocked(ctx, actorID) {
		now := e.clock.Now()
		e.reconcileLevelLocked(ctx, actorID, now, &out)
		e.renewLocked(ctx, actorID, now, &out)
	}
	sections := quest.CloneSections(e.sections)
	e.mu.Unlock()

	e.flush(ctx, out)
	return sections
}

// GetCompletedQuestsInSession returns the quests completed since the engine
// was initialized or the list was last cleared.
func (e *Engine) GetCompletedQuestsInSession() []*quest.Quest {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*quest.Quest, len(e.completed))
	for i, q := range e.completed {
		out[i] = q.Clone()
	}
	return out
}

// ClearCompletedQuestsInSession empties the session completion list.
func (e *Engine) ClearCompletedQuestsInSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

// outbox collects events raised while holding mu.
type outbox []shared.Event

func (o *outbox) questCompleted(actorID string, q *quest.Quest) {
	*o = append(*o, shared.NewEvent(shared.EventQuestCompleted, shared.Payload{
		QuestID:   q.ID,
		SectionID: q.SectionID,
		Stars:     q.Rewards.Stars,
		XP:        q.Rewards.XP,
	}).ForActor(actorID))
}

func (o *outbox) sectionRenewed(actorID string, s *quest.Section) {
	*o = append(*o, shared.NewEvent(shared.EventSectionRenewed, shared.Payload{
		SectionID: s.ID,
	}).ForActor(actorID))
}

func (e *Engine) flush(ctx context.Context, out outbox) {
	if e.bus == nil {
		return
	}
	for _, event := range out {
		if err := e.bus.Publish(ctx, event); err != nil {
			e.logger.Warn("failed to publish engine event",
				"event_type", event.Type,
				"actor_id", event.Metadata.ActorID,
				"error", err,
			)
		}
	}
}
