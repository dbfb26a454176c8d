package quest

import (
	"context"
	"time"
)

// Snapshot is the persisted quest state of one actor.
type Snapshot struct {
	Sections     []*Section `json:"sections"`
	OwnerActorID string     `json:"owner_actor_id"`
	LastUpdated  time.Time  `json:"last_updated"`
}

// Profile is the actor's current standing as reported by the identity layer.
type Profile struct {
	Level                 int `json:"level"`
	TotalXP               int `json:"total_xp"`
	TotalStars            int `json:"total_stars"`
	TotalLessonsCompleted int `json:"total_lessons_completed"`
	TotalModulesCompleted int `json:"total_modules_completed"`
	TotalTimeSpentMinutes int `json:"total_time_spent_minutes"`
	TotalPerfectSeries    int `json:"total_perfect_series"`
}

// Value returns the cumulative value of the profile for a quest type.
func (p Profile) Value(t Type) int {
	switch t {
	case TypeStarEarned:
		return p.TotalStars
	case TypeLessonCompleted:
		return p.TotalLessonsCompleted
	case TypeModuleCompleted:
		return p.TotalModulesCompleted
	case TypeLevelReached:
		return p.Level
	case TypeTimeSpent:
		return p.TotalTimeSpentMinutes
	case TypePerfectSeries:
		return p.TotalPerfectSeries
	}
	return 0
}

// WithValue returns a copy of p with the value for t replaced.
func (p Profile) WithValue(t Type, v int) Profile {
	switch t {
	case TypeStarEarned:
		p.TotalStars = v
	case TypeLessonCompleted:
		p.TotalLessonsCompleted = v
	case TypeModuleCompleted:
		p.TotalModulesCompleted = v
	case TypeLevelReached:
		p.Level = v
	case TypeTimeSpent:
		p.TotalTimeSpentMinutes = v
	case TypePerfectSeries:
		p.TotalPerfectSeries = v
	}
	return p
}

// ActorResolver resolves the actor of the current session. An empty id means
// no actor is signed in.
type ActorResolver interface {
	CurrentActorID(ctx context.Context) (string, error)
}

// ActorResolverFunc adapts a function to ActorResolver.
type ActorResolverFunc func(ctx context.Context) (string, error)

// CurrentActorID implements ActorResolver.
func (f ActorResolverFunc) CurrentActorID(ctx context.Context) (string, error) { return f(ctx) }

// ProfileSource reads the actor's progress snapshot.
type ProfileSource interface {
	Profile(ctx context.Context, actorID string) (Profile, error)
}

// ProfileSourceFunc adapts a function to ProfileSource.
type ProfileSourceFunc func(ctx context.Context, actorID string) (Profile, error)

// Profile implements ProfileSource.
func (f ProfileSourceFunc) Profile(ctx context.Context, actorID string) (Profile, error) {
	return f(ctx, actorID)
}

// Gateway persists quest snapshots scoped per actor.
type Gateway interface {
	// Save stores the snapshot for actorID.
	Save(ctx context.Context, actorID string, snapshot Snapshot) error

	// Load returns the snapshot for actorID, or nil when none exists or the
	// stored record belongs to another actor.
	Load(ctx context.Context, actorID string) (*Snapshot, error)

	// Clear removes the snapshot for actorID.
	Clear(ctx context.Context, actorID string) error
}

// GenerateRequest describes the section a generator should build.
type GenerateRequest struct {
	ActorID string
	Scope   Scope
	// Others are the sections currently held for the actor, excluding the
	// one being replaced.
	Others []*Section
	Now    time.Time
}

// SectionGenerator builds a replacement or initial section.
type SectionGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Section, error)
}
