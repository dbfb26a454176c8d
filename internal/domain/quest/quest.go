// Package quest contains the quest domain model: quests, their objectives,
// the sections that group them and the ports the engine depends on.
package quest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPE & STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Type is the kind of progress a quest tracks.
type Type string

const (
	TypeStarEarned      Type = "star_earned"
	TypeLessonCompleted Type = "lesson_completed"
	TypeModuleCompleted Type = "module_completed"
	TypeLevelReached    Type = "level_reached"
	TypeTimeSpent       Type = "time_spent"
	TypePerfectSeries   Type = "perfect_series"
)

// AllTypes returns every quest type in a stable order.
func AllTypes() []Type {
	return []Type{
		TypeStarEarned,
		TypeLessonCompleted,
		TypeModuleCompleted,
		TypeLevelReached,
		TypeTimeSpent,
		TypePerfectSeries,
	}
}

// IsValid reports whether t is a known quest type.
func (t Type) IsValid() bool {
	switch t {
	case TypeStarEarned, TypeLessonCompleted, TypeModuleCompleted,
		TypeLevelReached, TypeTimeSpent, TypePerfectSeries:
		return true
	}
	return false
}

// EventType returns the progress event that advances quests of this type.
func (t Type) EventType() shared.EventType {
	return shared.EventType(t)
}

// TypeForEvent maps a progress event to the quest type it advances.
func TypeForEvent(eventType shared.EventType) (Type, bool) {
	t := Type(eventType)
	return t, t.IsValid()
}

// Status is the lifecycle state of a quest.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Rewards are granted by the caller once a quest completes.
type Rewards struct {
	Stars int `json:"stars"`
	XP    int `json:"xp"`
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEST ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Quest is a single bounded numeric objective with a reward.
//
// Progress never decreases and never exceeds Target. The transition from
// StatusActive to StatusCompleted happens exactly once.
type Quest struct {
	ID          string
	Type        Type
	Title       string
	Description string
	Target      int
	Progress    int
	Status      Status
	Rewards     Rewards
	SectionID   string
	CreatedAt   time.Time
	CompletedAt *time.Time

	// Objective records how the target was derived. Nil for quests created
	// outside the generators.
	Objective Objective
}

// NewQuestParams contains the parameters for creating a quest.
type NewQuestParams struct {
	Type        Type
	Title       string
	Description string
	Target      int
	Progress    int
	Rewards     Rewards
	Objective   Objective
	Now         time.Time
}

// NewQuest creates an active quest. A quest whose objective is already
// satisfied is rejected.
func NewQuest(p NewQuestParams) (*Quest, error) {
	if !p.Type.IsValid() {
		return nil, shared.ErrInvalidQuestType
	}
	if p.Progress < 0 {
		return nil, shared.WrapError("quest", "New", shared.ErrNegativeValue, "progress cannot be negative", nil)
	}
	if p.Target <= 0 || p.Target <= p.Progress {
		return nil, shared.ErrInvalidTarget
	}
	if p.Now.IsZero() {
		p.Now = time.Now().UTC()
	}

	return &Quest{
		ID:          uuid.New().String(),
		Type:        p.Type,
		Title:       p.Title,
		Description: p.Description,
		Target:      p.Target,
		Progress:    p.Progress,
		Status:      StatusActive,
		Rewards:     p.Rewards,
		CreatedAt:   p.Now,
		Objective:   p.Objective,
	}, nil
}

// IsActive reports whether the quest still accepts progress.
func (q *Quest) IsActive() bool {
	return q.Status == StatusActive
}

// IsCompleted reports whether the quest reached its target.
func (q *Quest) IsCompleted() bool {
	return q.Status == StatusCompleted
}

// Advance adds amount to the progress, clamped to the target. It returns true
// only on the call that completes the quest. Completed quests and
// non-positive amounts are ignored.
func (q *Quest) Advance(amount int, now time.Time) bool {
	if !q.IsActive() || amount <= 0 {
		return false
	}
	if amount > q.Target-q.Progress {
		amount = q.Target - q.Progress
	}
	return q.moveTo(q.Progress+amount, now)
}

// RaiseTo sets the progress to value (clamped to the target) when that moves
// it forward. Used for objectives that track an absolute level rather than a
// delta. It returns true only on the call that completes the quest.
func (q *Quest) RaiseTo(value int, now time.Time) bool {
	if !q.IsActive() {
		return false
	}
	return q.moveTo(value, now)
}

func (q *Quest) moveTo(value int, now time.Time) bool {
	if value > q.Target {
		value = q.Target
	}
	if value <= q.Progress {
		return false
	}
	q.Progress = value
	if q.Progress < q.Target {
		return false
	}
	completedAt := now
	q.Status = StatusCompleted
	q.CompletedAt = &completedAt
	return true
}

// Remaining returns how much progress is left until the target.
func (q *Quest) Remaining() int {
	return q.Target - q.Progress
}

// ImpliedValue returns the actor's cumulative value this quest's progress
// stands for. Quests without an objective fall back to the raw progress.
func (q *Quest) ImpliedValue() int {
	if q.Objective == nil {
		return q.Progress
	}
	return q.Objective.Implied(q.Progress)
}

// Clone returns a deep copy of the quest.
func (q *Quest) Clone() *Quest {
	if q == nil {
		return nil
	}
	c := *q
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		c.CompletedAt = &t
	}
	if q.Objective != nil {
		c.Objective = q.Objective.clone()
	}
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON
// ══════════════════════════════════════════════════════════════════════════════

type questJSON struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Target      int             `json:"target"`
	Progress    int             `json:"progress"`
	Status      Status          `json:"status"`
	Rewards     Rewards         `json:"rewards"`
	SectionID   string          `json:"section_id"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// MarshalJSON encodes the quest with its objective as a tagged metadata
// object.
func (q Quest) MarshalJSON() ([]byte, error) {
	out := questJSON{
		ID:          q.ID,
		Type:        q.Type,
		Title:       q.Title,
		Description: q.Description,
		Target:      q.Target,
		Progress:    q.Progress,
		Status:      q.Status,
		Rewards:     q.Rewards,
		SectionID:   q.SectionID,
		CreatedAt:   q.CreatedAt,
		CompletedAt: q.CompletedAt,
	}
	if q.Objective != nil {
		meta, err := encodeObjective(q.Objective)
		if err != nil {
			return nil, err
		}
		out.Metadata = meta
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a quest and its tagged objective.
func (q *Quest) UnmarshalJSON(data []byte) error {
	var in questJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*q = Quest{
		ID:          in.ID,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Target:      in.Target,
		Progress:    in.Progress,
		Status:      in.Status,
		Rewards:     in.Rewards,
		SectionID:   in.SectionID,
		CreatedAt:   in.CreatedAt,
		CompletedAt: in.CompletedAt,
	}
	if len(in.Metadata) > 0 && string(in.Metadata) != "null" {
		obj, err := decodeObjective(in.Metadata)
		if err != nil {
			return err
		}
		q.Objective = obj
	}
	return nil
}
