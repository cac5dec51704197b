package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/saga/internal/domain"
)

// TraceSnapshot captures the trace of a scenario execution in the form
// stored in golden files.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	CampaignID   string       `json:"campaign_id"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to the golden document.
// Batch hashes are left out so that payload-shape changes show up as
// event or text diffs rather than opaque hash churn.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step":                ev.Step,
			"input":               ev.Input,
			"route":               ev.Route,
			"action_class":        ev.ActionClass,
			"requires_resolution": ev.RequiresResolution,
			"committed":           ev.Committed,
			"turn_number":         ev.TurnNumber,
			"stages":              ev.Stages,
			"events":              ev.Events,
			"text":                ev.Text,
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"campaign_id":   s.CampaignID,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GoldenBytes renders result the way golden files store it.
func GoldenBytes(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		CampaignID:   result.CampaignID,
		Trace:        result.Trace,
	}
	return domain.MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertGolden compares an already computed result against the golden
// file named scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := GoldenBytes(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
