package generator

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/domain/shared"
	"github.com/alem-hub/quest-engine/pkg/timeutil"
)

// Wednesday.
var testNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func staticProfile(p quest.Profile) quest.ProfileSource {
	return quest.ProfileSourceFunc(func(ctx context.Context, actorID string) (quest.Profile, error) {
		return p, nil
	})
}

func testOptions(seed uint64, profile quest.Profile) Options {
	return Options{
		Profiles: staticProfile(profile),
		Location: time.UTC,
		Rand:     rand.New(rand.NewPCG(seed, seed+1)),
	}
}

// sectionWithTypes builds an active section holding one quest per type.
func sectionWithTypes(t *testing.T, scope quest.Scope, types ...quest.Type) *quest.Section {
	t.Helper()
	quests := make([]*quest.Quest, 0, len(types))
	for _, typ := range types {
		q, err := quest.NewQuest(quest.NewQuestParams{Type: typ, Target: 1000, Now: testNow})
		require.NoError(t, err)
		quests = append(quests, q)
	}
	return quest.NewSection(scope, "other", quests, testNow, time.Time{})
}

func typesOf(s *quest.Section) []quest.Type {
	out := make([]quest.Type, 0, len(s.Quests))
	for _, q := range s.Quests {
		out = append(out, q.Type)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

func TestCatalogSelect_NearestAbove(t *testing.T) {
	c := DefaultCatalog()

	tpl, ok := c.Select(quest.TypeStarEarned, 0)
	require.True(t, ok)
	assert.Equal(t, 10, tpl.Target)

	tpl, ok = c.Select(quest.TypeStarEarned, 10)
	require.True(t, ok)
	assert.Equal(t, 25, tpl.Target, "a target equal to the current value is already reached")

	tpl, ok = c.Select(quest.TypeStarEarned, 26)
	require.True(t, ok)
	assert.Equal(t, 50, tpl.Target)

	_, ok = c.Select(quest.TypeStarEarned, 50)
	assert.False(t, ok)
}

func TestCatalogSelect_LevelPicksSmallestAboveCurrent(t *testing.T) {
	c := DefaultCatalog()

	tpl, ok := c.Select(quest.TypeLevelReached, 4)
	require.True(t, ok)
	assert.Equal(t, 5, tpl.Target)

	_, ok = c.Select(quest.TypeLevelReached, 10)
	assert.False(t, ok)
}

func TestNewCatalog_SortsTemplates(t *testing.T) {
	c := NewCatalog(map[quest.Type][]Template{
		quest.TypeLessonCompleted: {{Target: 9}, {Target: 2}, {Target: 5}},
	})

	got := c.Templates(quest.TypeLessonCompleted)
	assert.Equal(t, []Template{{Target: 2}, {Target: 5}, {Target: 9}}, got)

	tpl, ok := c.Select(quest.TypeLessonCompleted, 3)
	require.True(t, ok)
	assert.Equal(t, 5, tpl.Target)
}

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

func TestReward_LinearWithFloor(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, quest.Rewards{Stars: 20, XP: 200}, p.Reward(quest.TypeLevelReached, 2))
	assert.Equal(t, quest.Rewards{Stars: 40, XP: 400}, p.Reward(quest.TypeLevelReached, 4))
	assert.Equal(t, quest.Rewards{Stars: 6, XP: 60}, p.Reward(quest.TypeTimeSpent, 60))
	assert.Equal(t, quest.Rewards{Stars: 1, XP: 1}, p.Reward(quest.TypeTimeSpent, 1))
}

func TestReward_Multipliers(t *testing.T) {
	p := DefaultPolicy()
	p.StarMultiplier = 2
	p.XPMultiplier = 0.5

	assert.Equal(t, quest.Rewards{Stars: 20, XP: 50}, p.Reward(quest.TypeModuleCompleted, 2))
}

func TestIncrement_TiersAndScope(t *testing.T) {
	p := DefaultPolicy()
	rng := newLockedRand(rand.New(rand.NewPCG(7, 8)))

	for range 50 {
		inc := p.increment(rng, quest.TypeModuleCompleted, 0, quest.ScopeShortCycle)
		assert.GreaterOrEqual(t, inc, 1)
		assert.LessOrEqual(t, inc, 2)

		inc = p.increment(rng, quest.TypeModuleCompleted, 100, quest.ScopeShortCycle)
		assert.GreaterOrEqual(t, inc, 3)
		assert.LessOrEqual(t, inc, 6)

		inc = p.increment(rng, quest.TypeLevelReached, 1, quest.ScopeLongCycle)
		assert.Zero(t, inc%p.LongCycleFactor)
		assert.GreaterOrEqual(t, inc, p.LongCycleFactor)
	}
}

func TestExpiryFor(t *testing.T) {
	short := ExpiryFor(quest.ScopeShortCycle, testNow, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 8, 23, 59, 59, 999999999, time.UTC), short)

	long := ExpiryFor(quest.ScopeLongCycle, testNow, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 31, 23, 59, 59, 999999999, time.UTC), long)

	almaty := ExpiryFor(quest.ScopeShortCycle, testNow, timeutil.AlmatyTZ)
	assert.Equal(t, time.UTC, almaty.Location())
	assert.Equal(t, time.Date(2026, 3, 8, 18, 59, 59, 999999999, time.UTC), almaty)
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSONALIZED GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

func TestPersonalized_FreshActorGetsFullSection(t *testing.T) {
	g := NewPersonalizedGenerator(testOptions(1, quest.Profile{Level: 1}))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "alice",
		Scope:   quest.ScopeShortCycle,
		Now:     testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, quest.ScopeShortCycle, s.Scope)
	assert.Equal(t, "Weekly quests", s.Title)
	assert.Equal(t, ExpiryFor(quest.ScopeShortCycle, testNow, time.UTC), s.ExpiresAt)
	require.Len(t, s.Quests, quest.QuestsPerSection)

	seen := map[quest.Type]bool{}
	for _, q := range s.Quests {
		assert.True(t, q.IsActive())
		assert.Greater(t, q.Target, q.Progress)
		assert.Equal(t, s.ID, q.SectionID)
		assert.NotNil(t, q.Objective)
		assert.False(t, seen[q.Type], "no duplicate type within a section")
		seen[q.Type] = true
	}
}

func TestPersonalized_CrossScopeExclusion(t *testing.T) {
	ctx := context.Background()

	for seed := uint64(0); seed < 40; seed++ {
		g := NewPersonalizedGenerator(testOptions(seed, quest.Profile{Level: 3, TotalStars: 12}))

		short, err := g.Generate(ctx, quest.GenerateRequest{ActorID: "a", Scope: quest.ScopeShortCycle, Now: testNow})
		require.NoError(t, err)
		long, err := g.Generate(ctx, quest.GenerateRequest{
			ActorID: "a",
			Scope:   quest.ScopeLongCycle,
			Others:  []*quest.Section{short},
			Now:     testNow,
		})
		require.NoError(t, err)

		require.Len(t, long.Quests, quest.QuestsPerSection)
		for _, typ := range typesOf(long) {
			assert.NotContains(t, typesOf(short), typ, "seed %d", seed)
		}
	}
}

func TestPersonalized_ReusesKindsWhenAllExhausted(t *testing.T) {
	others := []*quest.Section{sectionWithTypes(t, quest.ScopeShortCycle, quest.AllTypes()...)}
	g := NewPersonalizedGenerator(testOptions(3, quest.Profile{}))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeLongCycle,
		Others:  others,
		Now:     testNow,
	})
	require.NoError(t, err)
	assert.Len(t, s.Quests, quest.QuestsPerSection)
}

func TestPersonalized_CompletedQuestsDoNotBlockKinds(t *testing.T) {
	other := sectionWithTypes(t, quest.ScopeShortCycle,
		quest.TypeStarEarned, quest.TypeLessonCompleted, quest.TypePerfectSeries,
		quest.TypeTimeSpent, quest.TypeLevelReached)
	for _, q := range other.Quests {
		if q.Type == quest.TypeLevelReached {
			q.RaiseTo(q.Target, testNow)
		}
	}
	g := NewPersonalizedGenerator(testOptions(4, quest.Profile{}))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeLongCycle,
		Others:  []*quest.Section{other},
		Now:     testNow,
	})
	require.NoError(t, err)

	types := typesOf(s)
	assert.Contains(t, types, quest.TypeModuleCompleted)
	assert.Contains(t, types, quest.TypeLevelReached)
}

func TestPersonalized_ReconstructsProfileFromOtherSections(t *testing.T) {
	// Every kind but modules is taken, so modules is generated first.
	other := sectionWithTypes(t, quest.ScopeShortCycle,
		quest.TypeStarEarned, quest.TypeLessonCompleted, quest.TypeLevelReached,
		quest.TypeTimeSpent, quest.TypePerfectSeries)
	modules, err := quest.NewQuest(quest.NewQuestParams{
		Type:      quest.TypeModuleCompleted,
		Target:    5,
		Objective: &quest.ModuleObjective{Baseline: 12},
		Now:       testNow,
	})
	require.NoError(t, err)
	modules.Advance(3, testNow)
	modules.Status = quest.StatusCompleted
	other.Quests = append(other.Quests, modules)

	g := NewPersonalizedGenerator(testOptions(5, quest.Profile{TotalModulesCompleted: 10}))
	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeLongCycle,
		Others:  []*quest.Section{other},
		Now:     testNow,
	})
	require.NoError(t, err)

	require.Equal(t, quest.TypeModuleCompleted, s.Quests[0].Type)
	obj, ok := s.Quests[0].Objective.(*quest.ModuleObjective)
	require.True(t, ok)
	assert.Equal(t, 15, obj.Baseline)
	assert.Equal(t, 0, s.Quests[0].Progress)
}

func TestPersonalized_LevelObjectiveStartsAtCurrentLevel(t *testing.T) {
	other := sectionWithTypes(t, quest.ScopeShortCycle,
		quest.TypeStarEarned, quest.TypeLessonCompleted, quest.TypeModuleCompleted,
		quest.TypeTimeSpent, quest.TypePerfectSeries)
	g := NewPersonalizedGenerator(testOptions(6, quest.Profile{Level: 7}))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeShortCycle,
		Others:  []*quest.Section{other},
		Now:     testNow,
	})
	require.NoError(t, err)

	q := s.Quests[0]
	require.Equal(t, quest.TypeLevelReached, q.Type)
	assert.Equal(t, 7, q.Progress)
	assert.Greater(t, q.Target, 7)
	assert.Equal(t, 7, q.ImpliedValue())
	assert.Equal(t, DefaultPolicy().Reward(quest.TypeLevelReached, q.Target-7), q.Rewards)
}

func TestPersonalized_CounterFallsBackPastCatalog(t *testing.T) {
	other := sectionWithTypes(t, quest.ScopeShortCycle,
		quest.TypeLevelReached, quest.TypeLessonCompleted, quest.TypeModuleCompleted,
		quest.TypeTimeSpent, quest.TypePerfectSeries)
	g := NewPersonalizedGenerator(testOptions(7, quest.Profile{TotalStars: 900}))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeShortCycle,
		Others:  []*quest.Section{other},
		Now:     testNow,
	})
	require.NoError(t, err)

	q := s.Quests[0]
	require.Equal(t, quest.TypeStarEarned, q.Type)
	assert.Equal(t, 900, q.Progress)
	assert.Greater(t, q.Target, 900)
	obj, ok := q.Objective.(*quest.CounterObjective)
	require.True(t, ok)
	assert.Equal(t, quest.SourcePersonalized, obj.Provenance().Source)
}

func TestPersonalized_ProfileErrorStillGenerates(t *testing.T) {
	opts := testOptions(8, quest.Profile{})
	opts.Profiles = quest.ProfileSourceFunc(func(ctx context.Context, actorID string) (quest.Profile, error) {
		return quest.Profile{}, errors.New("identity service down")
	})

	s, err := NewPersonalizedGenerator(opts).Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeShortCycle,
		Now:     testNow,
	})
	require.NoError(t, err)
	assert.Len(t, s.Quests, quest.QuestsPerSection)
}

func TestGenerate_RejectsUnknownScope(t *testing.T) {
	_, err := NewPersonalizedGenerator(testOptions(9, quest.Profile{})).Generate(context.Background(),
		quest.GenerateRequest{Scope: "yearly", Now: testNow})
	assert.ErrorIs(t, err, shared.ErrInvalidScope)
}

// ══════════════════════════════════════════════════════════════════════════════
// TEMPLATE GENERATOR
// ══════════════════════════════════════════════════════════════════════════════

func TestTemplate_UsesCatalogTargets(t *testing.T) {
	g := NewTemplateGenerator(testOptions(10, quest.Profile{Level: 1}))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeShortCycle,
		Now:     testNow,
	})
	require.NoError(t, err)
	require.Len(t, s.Quests, quest.QuestsPerSection)

	catalog := DefaultCatalog()
	for _, q := range s.Quests {
		current := 0
		if q.Type == quest.TypeLevelReached {
			current = 1
		}
		tpl, ok := catalog.Select(q.Type, current)
		require.True(t, ok)
		assert.Equal(t, tpl.Target, q.Target)
		assert.Equal(t, tpl.Rewards, q.Rewards)
		assert.Equal(t, current, q.Progress)
	}
}

func TestTemplate_ExhaustedCatalogYieldsError(t *testing.T) {
	profile := quest.Profile{
		Level:                 50,
		TotalStars:            5000,
		TotalLessonsCompleted: 500,
		TotalModulesCompleted: 50,
		TotalTimeSpentMinutes: 9000,
		TotalPerfectSeries:    90,
	}
	g := NewTemplateGenerator(testOptions(11, profile))

	_, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeShortCycle,
		Now:     testNow,
	})
	assert.ErrorIs(t, err, shared.ErrNoQuestsGenerated)
}

func TestTemplate_DegradedSectionWhenFewTemplatesLeft(t *testing.T) {
	profile := quest.Profile{
		Level:                 50,
		TotalStars:            5000,
		TotalLessonsCompleted: 500,
		TotalModulesCompleted: 50,
		TotalTimeSpentMinutes: 9000,
	}
	g := NewTemplateGenerator(testOptions(12, profile))

	s, err := g.Generate(context.Background(), quest.GenerateRequest{
		ActorID: "a",
		Scope:   quest.ScopeShortCycle,
		Now:     testNow,
	})
	require.NoError(t, err)

	// Only perfect series has templates left; the round-robin retries reuse it.
	require.NotEmpty(t, s.Quests)
	for _, q := range s.Quests {
		assert.Equal(t, quest.TypePerfectSeries, q.Type)
	}
}

func TestReconstructProfile(t *testing.T) {
	level, err := quest.NewQuest(quest.NewQuestParams{
		Type: quest.TypeLevelReached, Target: 9, Progress: 6,
		Objective: &quest.LevelObjective{StartLevel: 4},
	})
	require.NoError(t, err)
	external, err := quest.NewQuest(quest.NewQuestParams{Type: quest.TypeStarEarned, Target: 50, Progress: 30})
	require.NoError(t, err)
	s := quest.NewSection(quest.ScopeShortCycle, "s", []*quest.Quest{level, external}, testNow, time.Time{})

	p := ReconstructProfile(quest.Profile{Level: 5, TotalStars: 40}, []*quest.Section{s, nil})

	assert.Equal(t, 6, p.Level)
	assert.Equal(t, 40, p.TotalStars, "higher profile value wins")
}
