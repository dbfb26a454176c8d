// Package generator builds quest sections: a template generator backed by a
// fixed catalog and a personalized generator that scales objectives with the
// actor's standing.
package generator

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// POLICY
// ══════════════════════════════════════════════════════════════════════════════

// Policy holds the tunable generation parameters.
type Policy struct {
	// QuestsPerSection is the number of quests a full section holds.
	QuestsPerSection int

	// AttemptCap bounds the build attempts of one generation pass.
	AttemptCap int

	// LongCycleFactor scales increments for long-cycle sections.
	LongCycleFactor int

	StarMultiplier float64
	XPMultiplier   float64

	ShortCycleTitle string
	LongCycleTitle  string
}

// DefaultPolicy returns the production policy.
func DefaultPolicy() Policy {
	return Policy{
		QuestsPerSection: quest.QuestsPerSection,
		AttemptCap:       12,
		LongCycleFactor:  3,
		StarMultiplier:   1.0,
		XPMultiplier:     1.0,
		ShortCycleTitle:  "Weekly quests",
		LongCycleTitle:   "Monthly quests",
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.QuestsPerSection <= 0 {
		p.QuestsPerSection = d.QuestsPerSection
	}
	if p.AttemptCap <= 0 {
		p.AttemptCap = d.AttemptCap
	}
	if p.LongCycleFactor <= 0 {
		p.LongCycleFactor = d.LongCycleFactor
	}
	if p.StarMultiplier <= 0 {
		p.StarMultiplier = d.StarMultiplier
	}
	if p.XPMultiplier <= 0 {
		p.XPMultiplier = d.XPMultiplier
	}
	if p.ShortCycleTitle == "" {
		p.ShortCycleTitle = d.ShortCycleTitle
	}
	if p.LongCycleTitle == "" {
		p.LongCycleTitle = d.LongCycleTitle
	}
	return p
}

// SectionTitle returns the display title for a scope.
func (p Policy) SectionTitle(scope quest.Scope) string {
	if scope == quest.ScopeLongCycle {
		return p.LongCycleTitle
	}
	return p.ShortCycleTitle
}

// scopeFactor returns the increment multiplier for a scope.
func (p Policy) scopeFactor(scope quest.Scope) int {
	if scope == quest.ScopeLongCycle {
		return p.LongCycleFactor
	}
	return 1
}

// ══════════════════════════════════════════════════════════════════════════════
// INCREMENT TIERS
// ══════════════════════════════════════════════════════════════════════════════

// tier is an increment range that applies while the current value is below
// upTo. The last tier of a list has upTo 0 and applies to everything else.
type tier struct {
	upTo     int
	min, max int
}

var incrementTiers = map[quest.Type][]tier{
	quest.TypeLevelReached:    {{upTo: 5, min: 1, max: 2}, {upTo: 15, min: 1, max: 3}, {min: 2, max: 4}},
	quest.TypeModuleCompleted: {{upTo: 10, min: 1, max: 2}, {upTo: 50, min: 2, max: 4}, {min: 3, max: 6}},
	quest.TypeTimeSpent:       {{upTo: 300, min: 30, max: 60}, {upTo: 3000, min: 60, max: 120}, {min: 90, max: 180}},
	quest.TypeStarEarned:      {{upTo: 50, min: 5, max: 15}, {upTo: 500, min: 15, max: 30}, {min: 30, max: 60}},
	quest.TypeLessonCompleted: {{upTo: 20, min: 2, max: 4}, {upTo: 200, min: 4, max: 8}, {min: 6, max: 12}},
	quest.TypePerfectSeries:   {{upTo: 5, min: 1, max: 2}, {upTo: 30, min: 2, max: 3}, {min: 3, max: 5}},
}

func tierFor(t quest.Type, current int) tier {
	tiers := incrementTiers[t]
	for _, tr := range tiers {
		if tr.upTo == 0 || current < tr.upTo {
			return tr
		}
	}
	return tier{min: 1, max: 1}
}

// increment draws a random increment for t scaled by scope.
func (p Policy) increment(rng *lockedRand, t quest.Type, current int, scope quest.Scope) int {
	tr := tierFor(t, current)
	n := tr.min
	if tr.max > tr.min {
		n += rng.IntN(tr.max - tr.min + 1)
	}
	return n * p.scopeFactor(scope)
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

// rewardRate is the reward per unit of increment: stars = inc*stars/per.
type rewardRate struct {
	stars, xp, per int
}

var rewardRates = map[quest.Type]rewardRate{
	quest.TypeLevelReached:    {stars: 10, xp: 100, per: 1},
	quest.TypeModuleCompleted: {stars: 5, xp: 50, per: 1},
	quest.TypeTimeSpent:       {stars: 1, xp: 10, per: 10},
	quest.TypeStarEarned:      {stars: 1, xp: 10, per: 5},
	quest.TypeLessonCompleted: {stars: 2, xp: 20, per: 1},
	quest.TypePerfectSeries:   {stars: 5, xp: 50, per: 1},
}

// Reward returns the reward for completing an increment of t. Rewards are
// linear in the increment and never below one.
func (p Policy) Reward(t quest.Type, increment int) quest.Rewards {
	rate, ok := rewardRates[t]
	if !ok {
		rate = rewardRate{stars: 1, xp: 10, per: 1}
	}
	stars := float64(increment*rate.stars) / float64(rate.per) * p.StarMultiplier
	xp := float64(increment*rate.xp) / float64(rate.per) * p.XPMultiplier
	return quest.Rewards{
		Stars: max(1, int(math.Round(stars))),
		XP:    max(1, int(math.Round(xp))),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TEXT
// ══════════════════════════════════════════════════════════════════════════════

func questText(t quest.Type, target, remaining int) (title, description string) {
	switch t {
	case quest.TypeLevelReached:
		return fmt.Sprintf("Reach level %d", target), "Keep earning XP until you level up."
	case quest.TypeModuleCompleted:
		return fmt.Sprintf("Complete %d modules", remaining), "Finish whole modules from start to end."
	case quest.TypeTimeSpent:
		return fmt.Sprintf("Study for %d minutes", remaining), "Time spent in lessons counts."
	case quest.TypeStarEarned:
		return fmt.Sprintf("Earn %d stars", remaining), "Stars come from lessons and quests."
	case quest.TypeLessonCompleted:
		return fmt.Sprintf("Complete %d lessons", remaining), "Any lesson counts."
	case quest.TypePerfectSeries:
		return fmt.Sprintf("Get %d perfect scores", remaining), "Finish a lesson without mistakes."
	}
	return string(t), ""
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// ExpiryFor returns the end of the cycle that contains now, in UTC.
func ExpiryFor(scope quest.Scope, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if scope == quest.ScopeLongCycle {
		return timeutil.EndOfMonth(now, loc).UTC()
	}
	return timeutil.EndOfWeek(now, loc).UTC()
}

// lockedRand makes a *rand.Rand safe for concurrent use.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) shuffleTypes(types []quest.Type) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(len(types), func(i, j int) { types[i], types[j] = types[j], types[i] })
}

// excludedTypes returns the quest types used by active quests of others.
func excludedTypes(others []*quest.Section) map[quest.Type]bool {
	used := make(map[quest.Type]bool)
	for _, s := range others {
		if s == nil {
			continue
		}
		for t := range s.ActiveTypes() {
			used[t] = true
		}
	}
	return used
}

// kindOrder returns the unused types shuffled, followed by the used types
// shuffled. Used types are only reached once unused ones are exhausted.
func kindOrder(rng *lockedRand, used map[quest.Type]bool) []quest.Type {
	var fresh, reused []quest.Type
	for _, t := range quest.AllTypes() {
		if used[t] {
			reused = append(reused, t)
		} else {
			fresh = append(fresh, t)
		}
	}
	rng.shuffleTypes(fresh)
	rng.shuffleTypes(reused)
	return append(fresh, reused...)
}
