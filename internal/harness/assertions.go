package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/projection"
	"github.com/roach88/saga/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %q %s\n", ev.Step, ev.Input, strings.Join(ev.Stages, " > "))
		}
	}
	return buf.String()
}

// stepsFor returns the trace events an assertion applies to.
func stepsFor(trace []TraceEvent, step int) []TraceEvent {
	if step == 0 {
		return trace
	}
	for _, ev := range trace {
		if ev.Step == step {
			return []TraceEvent{ev}
		}
	}
	return nil
}

func describeStep(step int) string {
	if step == 0 {
		return "any step"
	}
	return fmt.Sprintf("step %d", step)
}

// assertTraceContains checks that a stage was visited.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range stepsFor(trace, assertion.Step) {
		if slices.Contains(ev.Stages, assertion.Stage) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("stage %s in %s", assertion.Stage, describeStep(assertion.Step)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that stages were visited in the specified order.
// Stages don't need to be consecutive (intervening stages are allowed).
// Without a step, the stages of all steps are concatenated.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	var visited []string
	for _, ev := range stepsFor(trace, assertion.Step) {
		visited = append(visited, ev.Stages...)
	}

	pos := 0
	for _, want := range assertion.Stages {
		i := slices.Index(visited[pos:], want)
		if i < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("stages in order %v in %s", assertion.Stages, describeStep(assertion.Step)),
				Actual:   fmt.Sprintf("%s not found after position %d in %v", want, pos, visited),
				Trace:    trace,
			}
		}
		pos += i + 1
	}
	return nil
}

// assertTraceCount checks the stage is visited exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range stepsFor(trace, assertion.Step) {
		for _, s := range ev.Stages {
			if s == assertion.Stage {
				count++
			}
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d visits of %s", assertion.Count, assertion.Stage),
			Actual:   fmt.Sprintf("%d visits", count),
			Trace:    trace,
		}
	}
	return nil
}

// projectionTables are the tables final_state may query.
var projectionTables = map[string]bool{
	"campaigns":      true,
	"characters":     true,
	"inventory":      true,
	"rendered_turns": true,
	"turn_recaps":    true,
}

// assertFinalState checks that exactly one row of a projection table
// matches Where and has the Expect values.
//
// Table and column names are validated against a whitelist pattern to
// prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, campaignID string, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) || !projectionTables[assertion.Table] {
		return fmt.Errorf("invalid table name %q", assertion.Table)
	}

	where := map[string]any{}
	for k, v := range assertion.Where {
		where[k] = v
	}
	if assertion.Table == "campaigns" {
		where["id"] = campaignID
	} else {
		where["campaign_id"] = campaignID
	}
	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", assertion.Table, whereSQL)
	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}
	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}
	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		actual, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expected, expected),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actual, actual),
			}
		}
	}
	return nil
}

// assertCharacter checks fields of a character in the final snapshot,
// using the character's JSON field names.
func assertCharacter(ctx context.Context, st *store.Store, campaignID string, assertion Assertion) error {
	snap, err := st.LoadSnapshot(ctx, campaignID)
	if err != nil {
		return err
	}
	c, ok := snap.Character(assertion.Character)
	if !ok {
		return &AssertionError{
			Type:     AssertCharacter,
			Expected: fmt.Sprintf("character %q", assertion.Character),
			Actual:   "not found",
		}
	}
	return matchDocument(AssertCharacter, "character "+assertion.Character, c, assertion.Expect)
}

// assertWorld checks fields of the final world state document.
func assertWorld(ctx context.Context, st *store.Store, campaignID string, assertion Assertion) error {
	c, err := st.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	return matchDocument(AssertWorld, "world", c.WorldState, assertion.Expect)
}

// assertVerify replays the log and compares it with the projections.
func assertVerify(ctx context.Context, st *store.Store, p *projection.Engine, campaignID string) error {
	report, err := p.Verify(ctx, st, campaignID)
	if err != nil {
		return err
	}
	if report.OK() {
		return nil
	}
	parts := make([]string, 0, len(report.Divergences))
	for _, d := range report.Divergences {
		parts = append(parts, d.Path)
	}
	return &AssertionError{
		Type:     AssertVerify,
		Expected: "replay matches projections",
		Actual:   fmt.Sprintf("%d unhandled events, divergent paths %v", report.Unhandled, parts),
	}
}

// matchDocument subset-matches expect against v's JSON form.
func matchDocument(kind, what string, v any, expect map[string]any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	actual := event.NormalizeValue(doc).(map[string]any)
	for _, key := range sortedKeys(expect) {
		want := event.NormalizeValue(expect[key])
		got, ok := actual[key]
		if !ok {
			got = nil
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("%s %s = %v", what, key, want),
				Actual:   fmt.Sprintf("%s %s = %v", what, key, got),
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildWhereClause constructs parameterized WHERE clause from where.
// Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML scalar to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64:
		return val
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from state tables.
// SQLite returns integers as int64 and stores booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case []byte:
			return exp == string(act)
		}
		return false
	case int:
		if act, ok := actual.(int64); ok {
			return int64(exp) == act
		}
		if act, ok := actual.(int); ok {
			return exp == act
		}
		return false
	case bool:
		if act, ok := actual.(bool); ok {
			return exp == act
		}
		if act, ok := actual.(int64); ok {
			return exp == (act != 0)
		}
		return false
	}
	return reflect.DeepEqual(expected, actual)
}

// valuesEqual compares two normalized values; nested maps and slices
// compare deeply.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	return reflect.DeepEqual(actual, expected)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx        context.Context
	Store      *store.Store
	CampaignID string
	Projector  *projection.Engine
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertCharacter, AssertWorld, AssertVerify:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertFinalState:
				err = assertFinalState(actx.Ctx, actx.Store, actx.CampaignID, assertion)
			case AssertCharacter:
				err = assertCharacter(actx.Ctx, actx.Store, actx.CampaignID, assertion)
			case AssertWorld:
				err = assertWorld(actx.Ctx, actx.Store, actx.CampaignID, assertion)
			case AssertVerify:
				p := actx.Projector
				if p == nil {
					p = projection.New()
				}
				err = assertVerify(actx.Ctx, actx.Store, p, actx.CampaignID)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
