package quest

import (
	"time"

	"github.com/google/uuid"
)

// QuestsPerSection is the number of quests every generated section holds.
const QuestsPerSection = 3

// Scope is the cadence class of a section.
type Scope string

const (
	ScopeShortCycle Scope = "short_cycle"
	ScopeLongCycle  Scope = "long_cycle"
)

// AllScopes returns the scopes in generation order.
func AllScopes() []Scope {
	return []Scope{ScopeShortCycle, ScopeLongCycle}
}

// IsValid reports whether s is a known scope.
func (s Scope) IsValid() bool {
	return s == ScopeShortCycle || s == ScopeLongCycle
}

// Section is a fixed-size group of quests with a one-shot completion
// lifecycle. Sections are never edited quest by quest: renewal replaces the
// whole section.
type Section struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Scope       Scope      `json:"scope"`
	Quests      []*Quest   `json:"quests"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// NewSection creates a section owning quests. Each quest gets its SectionID
// set to the new section.
func NewSection(scope Scope, title string, quests []*Quest, now, expiresAt time.Time) *Section {
	s := &Section{
		ID:        uuid.New().String(),
		Title:     title,
		Scope:     scope,
		Quests:    make([]*Quest, 0, len(quests)),
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}
	for _, q := range quests {
		q.SectionID = s.ID
		s.Quests = append(s.Quests, q)
	}
	return s
}

// AllQuestsCompleted reports whether the section holds quests and every one
// of them is completed. An empty section never counts as completed.
func (s *Section) AllQuestsCompleted() bool {
	if len(s.Quests) == 0 {
		return false
	}
	for _, q := range s.Quests {
		if !q.IsCompleted() {
			return false
		}
	}
	return true
}

// IsCompleted reports whether the section has been marked completed.
func (s *Section) IsCompleted() bool {
	return s.CompletedAt != nil
}

// MarkCompleted sets CompletedAt the first time all quests are completed. It
// returns false when the section was already marked or is not done yet.
func (s *Section) MarkCompleted(now time.Time) bool {
	if s.CompletedAt != nil || !s.AllQuestsCompleted() {
		return false
	}
	t := now
	s.CompletedAt = &t
	return true
}

// IsExpired reports whether the section's cycle has ended.
func (s *Section) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ActiveQuests returns the quests that still accept progress.
func (s *Section) ActiveQuests() []*Quest {
	active := make([]*Quest, 0, len(s.Quests))
	for _, q := range s.Quests {
		if q.IsActive() {
			active = append(active, q)
		}
	}
	return active
}

// ActiveTypes returns the set of quest types used by active quests.
func (s *Section) ActiveTypes() map[Type]bool {
	types := make(map[Type]bool, len(s.Quests))
	for _, q := range s.Quests {
		if q.IsActive() {
			types[q.Type] = true
		}
	}
	return types
}

// Clone returns a deep copy of the section.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	c := *s
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Quests = make([]*Quest, len(s.Quests))
	for i, q := range s.Quests {
		c.Quests[i] = q.Clone()
	}
	return &c
}

// CloneSections deep-copies a list of sections.
func CloneSections(sections []*Section) []*Section {
	out := make([]*Section, len(sections))
	for i, s := range sections {
		out[i] = s.Clone()
	}
	return out
}
