package quest

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

var testNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestQuest(t *testing.T, typ Type, target, progress int) *Quest {
	t.Helper()
	q, err := NewQuest(NewQuestParams{
		Type:     typ,
		Title:    "test",
		Target:   target,
		Progress: progress,
		Rewards:  Rewards{Stars: 5, XP: 50},
		Now:      testNow,
	})
	require.NoError(t, err)
	return q
}

func TestNewQuest_RejectsSatisfiedObjective(t *testing.T) {
	_, err := NewQuest(NewQuestParams{Type: TypeStarEarned, Target: 5, Progress: 5})
	assert.ErrorIs(t, err, shared.ErrInvalidTarget)
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewQuest(NewQuestParams{Type: TypeStarEarned, Target: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidTarget)
}

func TestNewQuest_RejectsUnknownType(t *testing.T) {
	_, err := NewQuest(NewQuestParams{Type: "dance", Target: 3})
	assert.ErrorIs(t, err, shared.ErrInvalidQuestType)
}

func TestNewQuest_Defaults(t *testing.T) {
	q := newTestQuest(t, TypeLessonCompleted, 3, 0)

	assert.NotEmpty(t, q.ID)
	assert.Equal(t, StatusActive, q.Status)
	assert.Nil(t, q.CompletedAt)
	assert.Equal(t, testNow, q.CreatedAt)
	assert.Equal(t, 3, q.Remaining())
}

func TestAdvance_ClampsAndCompletesOnce(t *testing.T) {
	q := newTestQuest(t, TypeStarEarned, 10, 7)

	completed := q.Advance(5, testNow)
	assert.True(t, completed)
	assert.Equal(t, 10, q.Progress)
	assert.Equal(t, StatusCompleted, q.Status)
	require.NotNil(t, q.CompletedAt)
	assert.Equal(t, testNow, *q.CompletedAt)

	// Re-delivery after completion is a silent no-op.
	assert.False(t, q.Advance(5, testNow.Add(time.Hour)))
	assert.Equal(t, 10, q.Progress)
	assert.Equal(t, testNow, *q.CompletedAt)
}

func TestAdvance_HugeAmountCompletes(t *testing.T) {
	q := newTestQuest(t, TypeStarEarned, 10, 3)

	assert.True(t, q.Advance(math.MaxInt, testNow))
	assert.Equal(t, 10, q.Progress)
	assert.Equal(t, StatusCompleted, q.Status)
}

func TestAdvance_IgnoresNonPositiveAmounts(t *testing.T) {
	q := newTestQuest(t, TypeTimeSpent, 60, 10)

	assert.False(t, q.Advance(0, testNow))
	assert.False(t, q.Advance(-5, testNow))
	assert.Equal(t, 10, q.Progress)
}

func TestRaiseTo_SetsAbsoluteValueAndNeverMovesBack(t *testing.T) {
	q := newTestQuest(t, TypeLevelReached, 5, 2)

	assert.False(t, q.RaiseTo(1, testNow))
	assert.Equal(t, 2, q.Progress)

	assert.False(t, q.RaiseTo(4, testNow))
	assert.Equal(t, 4, q.Progress)

	assert.True(t, q.RaiseTo(7, testNow))
	assert.Equal(t, 5, q.Progress, "progress is clamped to target")
	assert.True(t, q.IsCompleted())

	assert.False(t, q.RaiseTo(9, testNow))
}

func TestImpliedValue(t *testing.T) {
	level := newTestQuest(t, TypeLevelReached, 8, 6)
	level.Objective = &LevelObjective{StartLevel: 6}
	assert.Equal(t, 6, level.ImpliedValue())

	modules := newTestQuest(t, TypeModuleCompleted, 3, 1)
	modules.Objective = &ModuleObjective{Baseline: 12}
	assert.Equal(t, 13, modules.ImpliedValue())

	external := newTestQuest(t, TypeStarEarned, 20, 4)
	assert.Equal(t, 4, external.ImpliedValue())
}

func TestQuestJSON_PreservesObjectiveVariant(t *testing.T) {
	q := newTestQuest(t, TypeTimeSpent, 90, 0)
	q.SectionID = "section-1"
	q.Objective = &TimeObjective{
		Origin:          Origin{Scope: ScopeLongCycle, Source: SourcePersonalized},
		BaselineMinutes: 340,
	}
	q.Advance(90, testNow)

	data, err := json.Marshal(q)
	require.NoError(t, err)

	var decoded Quest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *q, decoded)

	obj, ok := decoded.Objective.(*TimeObjective)
	require.True(t, ok)
	assert.Equal(t, ScopeLongCycle, obj.Provenance().Scope)
	assert.Equal(t, 430, decoded.ImpliedValue())
}

func TestQuestJSON_UnknownObjectiveKind(t *testing.T) {
	raw := `{"id":"q1","type":"star_earned","target":3,"status":"active","metadata":{"kind":"mystery","data":{}}}`

	var q Quest
	err := json.Unmarshal([]byte(raw), &q)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestQuestJSON_WithoutMetadata(t *testing.T) {
	raw := `{"id":"q1","type":"star_earned","target":3,"progress":1,"status":"active"}`

	var q Quest
	require.NoError(t, json.Unmarshal([]byte(raw), &q))
	assert.Nil(t, q.Objective)
	assert.Equal(t, 1, q.ImpliedValue())
}

func TestClone_IsDeep(t *testing.T) {
	q := newTestQuest(t, TypeModuleCompleted, 2, 0)
	q.Objective = &ModuleObjective{Baseline: 3}
	q.Advance(2, testNow)

	c := q.Clone()
	c.Objective.(*ModuleObjective).Baseline = 99
	*c.CompletedAt = testNow.Add(time.Hour)

	assert.Equal(t, 3, q.Objective.(*ModuleObjective).Baseline)
	assert.Equal(t, testNow, *q.CompletedAt)
}

func TestTypeForEvent(t *testing.T) {
	typ, ok := TypeForEvent(shared.EventStarEarned)
	assert.True(t, ok)
	assert.Equal(t, TypeStarEarned, typ)

	_, ok = TypeForEvent(shared.EventQuestCompleted)
	assert.False(t, ok)
}
