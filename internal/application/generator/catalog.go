package generator

import (
	"slices"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
)

// Template is a canned objective: an absolute cumulative target and its
// reward.
type Template struct {
	Target  int
	Rewards quest.Rewards
}

// Catalog holds a few templates per quest type, ordered by increasing target.
// It is read-only after construction.
type Catalog struct {
	templates map[quest.Type][]Template
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[quest.Type][]Template{
		quest.TypeStarEarned: {
			{Target: 10, Rewards: quest.Rewards{Stars: 3, XP: 30}},
			{Target: 25, Rewards: quest.Rewards{Stars: 6, XP: 60}},
			{Target: 50, Rewards: quest.Rewards{Stars: 10, XP: 100}},
		},
		quest.TypeLessonCompleted: {
			{Target: 3, Rewards: quest.Rewards{Stars: 5, XP: 50}},
			{Target: 10, Rewards: quest.Rewards{Stars: 10, XP: 100}},
			{Target: 25, Rewards: quest.Rewards{Stars: 20, XP: 200}},
		},
		quest.TypeModuleCompleted: {
			{Target: 1, Rewards: quest.Rewards{Stars: 5, XP: 50}},
			{Target: 3, Rewards: quest.Rewards{Stars: 15, XP: 150}},
			{Target: 5, Rewards: quest.Rewards{Stars: 25, XP: 250}},
		},
		quest.TypeLevelReached: {
			{Target: 2, Rewards: quest.Rewards{Stars: 10, XP: 100}},
			{Target: 5, Rewards: quest.Rewards{Stars: 25, XP: 250}},
			{Target: 10, Rewards: quest.Rewards{Stars: 50, XP: 500}},
		},
		quest.TypeTimeSpent: {
			{Target: 30, Rewards: quest.Rewards{Stars: 3, XP: 30}},
			{Target: 120, Rewards: quest.Rewards{Stars: 10, XP: 100}},
			{Target: 300, Rewards: quest.Rewards{Stars: 25, XP: 250}},
		},
		quest.TypePerfectSeries: {
			{Target: 1, Rewards: quest.Rewards{Stars: 5, XP: 50}},
			{Target: 3, Rewards: quest.Rewards{Stars: 15, XP: 150}},
			{Target: 5, Rewards: quest.Rewards{Stars: 25, XP: 250}},
		},
	})
}

// NewCatalog creates a catalog. Templates are sorted by target.
func NewCatalog(templates map[quest.Type][]Template) *Catalog {
	c := &Catalog{templates: make(map[quest.Type][]Template, len(templates))}
	for t, list := range templates {
		sorted := slices.Clone(list)
		slices.SortFunc(sorted, func(a, b Template) int { return a.Target - b.Target })
		c.templates[t] = sorted
	}
	return c
}

// Templates returns the templates for t.
func (c *Catalog) Templates(t quest.Type) []Template {
	return slices.Clone(c.templates[t])
}

// Select returns the template whose target is nearest to current among those
// strictly above it. Level templates are filtered to targets above the
// current level and the smallest one wins. ok is false when every target has
// been reached.
func (c *Catalog) Select(t quest.Type, current int) (tpl Template, ok bool) {
	if t == quest.TypeLevelReached {
		for _, candidate := range c.templates[t] {
			if candidate.Target > current {
				return candidate, true
			}
		}
		return Template{}, false
	}

	best := -1
	for _, candidate := range c.templates[t] {
		if candidate.Target <= current {
			continue
		}
		if best < 0 || candidate.Target-current < best {
			best = candidate.Target - current
			tpl, ok = candidate, true
		}
	}
	return tpl, ok
}
