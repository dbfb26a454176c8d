package generator

import (
	"context"
	"time"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
)

// PersonalizedGenerator synthesizes objectives that scale with the actor's
// standing.
//
// Level, module and time objectives add a tiered random increment to the
// current value. Counter objectives (stars, lessons, perfect series) take the
// nearest catalog template and fall back to a tiered increment once the
// catalog is exhausted.
type PersonalizedGenerator struct {
	base
}

var _ quest.SectionGenerator = (*PersonalizedGenerator)(nil)

// NewPersonalizedGenerator creates a personalized generator.
func NewPersonalizedGenerator(opts Options) *PersonalizedGenerator {
	return &PersonalizedGenerator{base: newBase(opts, "personalized_generator")}
}

// Generate implements quest.SectionGenerator.
func (g *PersonalizedGenerator) Generate(ctx context.Context, req quest.GenerateRequest) (*quest.Section, error) {
	return g.generate(ctx, req, g.build)
}

func (g *PersonalizedGenerator) build(t quest.Type, profile quest.Profile, scope quest.Scope, now time.Time) (*quest.Quest, error) {
	current := profile.Value(t)
	origin := quest.Origin{Scope: scope, Source: quest.SourcePersonalized}

	switch t {
	case quest.TypeLevelReached:
		inc := g.policy.increment(g.rng, t, current, scope)
		return g.newQuest(t, current+inc, current, inc, now,
			&quest.LevelObjective{Origin: origin, StartLevel: current})

	case quest.TypeModuleCompleted:
		inc := g.policy.increment(g.rng, t, current, scope)
		return g.newQuest(t, inc, 0, inc, now,
			&quest.ModuleObjective{Origin: origin, Baseline: current})

	case quest.TypeTimeSpent:
		inc := g.policy.increment(g.rng, t, current, scope)
		return g.newQuest(t, inc, 0, inc, now,
			&quest.TimeObjective{Origin: origin, BaselineMinutes: current})
	}

	if q, err := g.fromTemplate(t, current, scope, now); err == nil {
		return q, nil
	}

	inc := g.policy.increment(g.rng, t, current, scope)
	return g.newQuest(t, current+inc, current, inc, now,
		&quest.CounterObjective{Origin: origin, Counter: t})
}

func (g *PersonalizedGenerator) newQuest(t quest.Type, target, progress, inc int, now time.Time, obj quest.Objective) (*quest.Quest, error) {
	title, desc := questText(t, target, target-progress)
	return quest.NewQuest(quest.NewQuestParams{
		Type:        t,
		Title:       title,
		Description: desc,
		Target:      target,
		Progress:    progress,
		Rewards:     g.policy.Reward(t, inc),
		Objective:   obj,
		Now:         now,
	})
}
