package generator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// errNoTemplate is returned by builders when the catalog has no target left.
var errNoTemplate = errors.New("no template above current value")

// Options configure both generators.
type Options struct {
	Policy  Policy
	Catalog *Catalog

	// Profiles supplies the actor's standing. Nil means an empty profile.
	Profiles quest.ProfileSource

	// Location is the timezone used for cycle boundaries.
	Location *time.Location

	// Rand drives increments and kind order. Nil seeds a fresh source.
	Rand *rand.Rand

	Logger *slog.Logger
}

// builder creates one quest of type t, or returns an error when no valid
// objective exists.
type builder func(t quest.Type, profile quest.Profile, scope quest.Scope, now time.Time) (*quest.Quest, error)

type base struct {
	policy   Policy
	catalog  *Catalog
	profiles quest.ProfileSource
	loc      *time.Location
	rng      *lockedRand
	logger   *slog.Logger
}

func newBase(opts Options, component string) base {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return base{
		policy:   opts.Policy.normalized(),
		catalog:  opts.Catalog,
		profiles: opts.Profiles,
		loc:      opts.Location,
		rng:      newLockedRand(opts.Rand),
		logger:   opts.Logger.With("component", component),
	}
}

// generate runs one generation pass with build and wraps the result in a
// section.
func (b *base) generate(ctx context.Context, req quest.GenerateRequest, build builder) (*quest.Section, error) {
	if !req.Scope.IsValid() {
		return nil, shared.ErrInvalidScope
	}
	if req.Now.IsZero() {
		req.Now = time.Now().UTC()
	}

	profile := b.profile(ctx, req)
	quests := b.fill(req, profile, build)
	if len(quests) == 0 {
		return nil, shared.ErrNoQuestsGenerated
	}
	if len(quests) < b.policy.QuestsPerSection {
		b.logger.Warn("generated degraded section",
			"actor_id", req.ActorID,
			"scope", req.Scope,
			"quests", len(quests),
		)
	}

	return quest.NewSection(
		req.Scope,
		b.policy.SectionTitle(req.Scope),
		quests,
		req.Now,
		ExpiryFor(req.Scope, req.Now, b.loc),
	), nil
}

// fill collects up to QuestsPerSection quests. Types used by active quests
// of the other sections come last, so they are reused only when the unused
// ones cannot fill the section. Once every type was tried, types are retried
// round-robin until the attempt cap.
func (b *base) fill(req quest.GenerateRequest, profile quest.Profile, build builder) []*quest.Quest {
	order := kindOrder(b.rng, excludedTypes(req.Others))
	quests := make([]*quest.Quest, 0, b.policy.QuestsPerSection)

	for attempt := 0; len(quests) < b.policy.QuestsPerSection && attempt < b.policy.AttemptCap; attempt++ {
		t := order[attempt%len(order)]
		q, err := build(t, profile, req.Scope, req.Now)
		if err != nil {
			b.logger.Debug("objective rejected",
				"actor_id", req.ActorID,
				"scope", req.Scope,
				"quest_type", t,
				"error", err,
			)
			continue
		}
		quests = append(quests, q)
	}
	return quests
}

// profile returns the actor's standing: the profile source value raised to
// whatever the quests of the other sections imply.
func (b *base) profile(ctx context.Context, req quest.GenerateRequest) quest.Profile {
	var p quest.Profile
	if b.profiles != nil && req.ActorID != "" {
		fetched, err := b.profiles.Profile(ctx, req.ActorID)
		if err != nil {
			b.logger.Warn("profile unavailable, using section state",
				"actor_id", req.ActorID,
				"error", err,
			)
		} else {
			p = fetched
		}
	}
	return ReconstructProfile(p, req.Others)
}

// ReconstructProfile raises each value of p to the cumulative value implied
// by the quests in sections.
func ReconstructProfile(p quest.Profile, sections []*quest.Section) quest.Profile {
	for _, s := range sections {
		if s == nil {
			continue
		}
		for _, q := range s.Quests {
			if implied := q.ImpliedValue(); implied > p.Value(q.Type) {
				p = p.WithValue(q.Type, implied)
			}
		}
	}
	for _, t := range quest.AllTypes() {
		if p.Value(t) < 0 {
			p = p.WithValue(t, 0)
		}
	}
	return p
}

// fromTemplate builds a quest from the catalog template above the current
// value. Progress starts at the current cumulative value.
func (b *base) fromTemplate(t quest.Type, current int, scope quest.Scope, now time.Time) (*quest.Quest, error) {
	tpl, ok := b.catalog.Select(t, current)
	if !ok {
		return nil, errNoTemplate
	}

	origin := quest.Origin{Scope: scope, Source: quest.SourceTemplate}
	var obj quest.Objective = &quest.CounterObjective{Origin: origin, Counter: t}
	if t == quest.TypeLevelReached {
		obj = &quest.LevelObjective{Origin: origin, StartLevel: current}
	}

	title, desc := questText(t, tpl.Target, tpl.Target-current)
	return quest.NewQuest(quest.NewQuestParams{
		Type:        t,
		Title:       title,
		Description: desc,
		Target:      tpl.Target,
		Progress:    current,
		Rewards:     tpl.Rewards,
		Objective:   obj,
		Now:         now,
	})
}
