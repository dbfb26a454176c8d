package quest

import (
	"encoding/json"
	"fmt"

	"github.com/alem-hub/quest-engine/internal/domain/shared"
)

// ObjectiveKind tags the objective variant stored on a quest.
type ObjectiveKind string

const (
	KindLevel   ObjectiveKind = "level"
	KindModule  ObjectiveKind = "module"
	KindTime    ObjectiveKind = "time"
	KindCounter ObjectiveKind = "counter"
)

// Source tells which generator produced an objective.
type Source string

const (
	SourcePersonalized Source = "personalized"
	SourceTemplate     Source = "template"
)

// Origin records the scope and generator an objective was created for.
type Origin struct {
	Scope  Scope  `json:"scope"`
	Source Source `json:"source"`
}

// Provenance returns the origin of the objective.
func (o Origin) Provenance() Origin { return o }

// Objective describes how a quest target was derived. It is a closed set of
// variants: *LevelObjective, *ModuleObjective, *TimeObjective and
// *CounterObjective.
type Objective interface {
	Kind() ObjectiveKind
	// Implied converts quest progress back into the actor's cumulative value.
	Implied(progress int) int
	Provenance() Origin
	clone() Objective
}

// LevelObjective tracks an absolute level. Quest progress holds the level
// itself.
type LevelObjective struct {
	Origin
	StartLevel int `json:"start_level"`
}

func (o *LevelObjective) Kind() ObjectiveKind      { return KindLevel }
func (o *LevelObjective) Implied(progress int) int { return progress }
func (o *LevelObjective) clone() Objective         { c := *o; return &c }

// ModuleObjective tracks modules completed since Baseline.
type ModuleObjective struct {
	Origin
	Baseline int `json:"baseline"`
}

func (o *ModuleObjective) Kind() ObjectiveKind      { return KindModule }
func (o *ModuleObjective) Implied(progress int) int { return o.Baseline + progress }
func (o *ModuleObjective) clone() Objective         { c := *o; return &c }

// TimeObjective tracks minutes spent since BaselineMinutes.
type TimeObjective struct {
	Origin
	BaselineMinutes int `json:"baseline_minutes"`
}

func (o *TimeObjective) Kind() ObjectiveKind      { return KindTime }
func (o *TimeObjective) Implied(progress int) int { return o.BaselineMinutes + progress }
func (o *TimeObjective) clone() Objective         { c := *o; return &c }

// CounterObjective tracks a cumulative counter (stars, lessons, perfect
// series). Template objectives use absolute targets with Baseline 0.
type CounterObjective struct {
	Origin
	Counter  Type `json:"counter"`
	Baseline int  `json:"baseline"`
}

func (o *CounterObjective) Kind() ObjectiveKind      { return KindCounter }
func (o *CounterObjective) Implied(progress int) int { return o.Baseline + progress }
func (o *CounterObjective) clone() Objective         { c := *o; return &c }

type objectiveEnvelope struct {
	Kind ObjectiveKind   `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encodeObjective(o Objective) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s objective: %w", o.Kind(), err)
	}
	return json.Marshal(objectiveEnvelope{Kind: o.Kind(), Data: data})
}

func decodeObjective(raw []byte) (Objective, error) {
	var env objectiveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, shared.WrapError("quest", "DecodeObjective", shared.ErrInvalidFormat, "malformed objective", err)
	}

	var obj Objective
	switch env.Kind {
	case KindLevel:
		obj = &LevelObjective{}
	case KindModule:
		obj = &ModuleObjective{}
	case KindTime:
		obj = &TimeObjective{}
	case KindCounter:
		obj = &CounterObjective{}
	default:
		return nil, shared.WrapError("quest", "DecodeObjective", shared.ErrInvalidFormat,
			fmt.Sprintf("unknown objective kind %q", env.Kind), nil)
	}

	if err := json.Unmarshal(env.Data, obj); err != nil {
		return nil, shared.WrapError("quest", "DecodeObjective", shared.ErrInvalidFormat, "malformed objective data", err)
	}
	return obj, nil
}
