package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 1, Input: "look", Stages: []string{"router", "encounter", "world_reaction", "narrative", "commit"}},
		{Step: 2, Input: "attack", Stages: []string{"router", "mechanic", "encounter", "world_reaction", "narrative", "commit"}},
		{Step: 3, Input: "/status", Stages: []string{"router", "meta"}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceContains(trace, Assertion{Stage: "mechanic"}))
	assert.NoError(t, assertTraceContains(trace, Assertion{Stage: "mechanic", Step: 2}))

	err := assertTraceContains(trace, Assertion{Type: AssertTraceContains, Stage: "mechanic", Step: 1})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "stage mechanic in step 1")
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Step: 2, Stages: []string{"router", "mechanic", "commit"}}))
	// Without a step the visits of all steps are concatenated.
	assert.NoError(t, assertTraceOrder(trace, Assertion{Stages: []string{"encounter", "mechanic", "meta"}}))

	err := assertTraceOrder(trace, Assertion{Step: 2, Stages: []string{"commit", "mechanic"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mechanic not found after position")

	err = assertTraceOrder(trace, Assertion{Step: 1, Stages: []string{"mechanic"}})
	require.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Stage: "commit", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Stage: "router", Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Stage: "meta", Count: 0, Step: 1}))

	err := assertTraceCount(trace, Assertion{Stage: "commit", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 visits of commit")
	assert.Contains(t, err.Error(), "2 visits")
}

func TestEvaluateAssertions_StateRequiresContext(t *testing.T) {
	result := NewResult()
	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertFinalState, Table: "characters", Expect: map[string]any{"hp_current": 1}},
		{Type: AssertVerify},
	}, nil)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "requires database context")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "vibes"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "vibes"`)
}

func TestStateAssertions_Failures(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{
			name:      "character field mismatch",
			assertion: Assertion{Type: AssertCharacter, Character: "pc", Expect: map[string]any{"hp_current": 5}},
			want:      "character pc hp_current = 5",
		},
		{
			name:      "character missing",
			assertion: Assertion{Type: AssertCharacter, Character: "ghost", Expect: map[string]any{"hp_current": 5}},
			want:      `character "ghost"`,
		},
		{
			name:      "world mismatch",
			assertion: Assertion{Type: AssertWorld, Expect: map[string]any{"world_time_minutes": 999}},
			want:      "world world_time_minutes = 999",
		},
		{
			name:      "row not found",
			assertion: Assertion{Type: AssertFinalState, Table: "characters", Where: map[string]any{"id": "ghost"}, Expect: map[string]any{"hp_current": 1}},
			want:      "row not found",
		},
		{
			name:      "ambiguous rows",
			assertion: Assertion{Type: AssertFinalState, Table: "characters", Expect: map[string]any{"hp_current": 1}},
			want:      "multiple rows matched",
		},
		{
			name:      "value mismatch",
			assertion: Assertion{Type: AssertFinalState, Table: "characters", Where: map[string]any{"id": "pc"}, Expect: map[string]any{"hp_current": 1}},
			want:      `field "hp_current" = 1`,
		},
		{
			name:      "missing column",
			assertion: Assertion{Type: AssertFinalState, Table: "characters", Where: map[string]any{"id": "pc"}, Expect: map[string]any{"charisma": 1}},
			want:      `field "charisma" to exist`,
		},
		{
			name:      "table outside projections",
			assertion: Assertion{Type: AssertFinalState, Table: "events", Expect: map[string]any{"id": 1}},
			want:      `invalid table name "events"`,
		},
		{
			name:      "injection in column",
			assertion: Assertion{Type: AssertFinalState, Table: "characters", Where: map[string]any{"id = id OR 1": 1}, Expect: map[string]any{"hp_current": 1}},
			want:      "invalid column name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := gateScenario([]TurnStep{{Input: "look"}}, tt.assertion)
			result, err := Run(s)
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.want)
		})
	}
}

func TestStateAssertions_Pass(t *testing.T) {
	s := gateScenario([]TurnStep{{Input: "look"}},
		Assertion{Type: AssertFinalState, Table: "characters", Where: map[string]any{"id": "pc"}, Expect: map[string]any{"hp_current": 20, "kind": "player", "location": "gate"}},
		Assertion{Type: AssertFinalState, Table: "campaigns", Expect: map[string]any{"turn_number": 1}},
		Assertion{Type: AssertCharacter, Character: "guard", Expect: map[string]any{"hp_current": 4, "mood": "neutral", "relationship": nil}},
		Assertion{Type: AssertVerify},
	)
	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", strings.Join(result.Errors, "\n"))
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual("a", "a"))
	assert.True(t, stateValuesEqual("a", []byte("a")))
	assert.True(t, stateValuesEqual(3, int64(3)))
	assert.True(t, stateValuesEqual(true, int64(1)))
	assert.True(t, stateValuesEqual(false, int64(0)))
	assert.True(t, stateValuesEqual(nil, nil))
	assert.False(t, stateValuesEqual(3, "3"))
	assert.False(t, stateValuesEqual(nil, int64(0)))
}

func TestBuildWhereClause_SortedAndParameterized(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"owner_id": "pc", "campaign_id": "c1", "open": true})
	require.NoError(t, err)
	assert.Equal(t, "campaign_id = ? AND open = ? AND owner_id = ?", sql)
	assert.Equal(t, []any{"c1", 1, "pc"}, args)
}
