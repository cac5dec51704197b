package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/pipeline"
	"github.com/roach88/saga/internal/projection"
	"github.com/roach88/saga/internal/store"
	"github.com/roach88/saga/internal/testutil"
)

// Harness is the scenario execution engine. It holds the per-run store
// and deterministic helpers.
type Harness struct {
	store       *store.Store
	coordinator *commit.Coordinator
	logger      *slog.Logger
	campaignID  string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
//  1. Create fresh in-memory database
//  2. Create the campaign from the seed or genesis events
//  3. Play each turn through the pipeline with scripted collaborators
//  4. Check expect clauses and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()
	logger := testutil.DiscardLogger()
	projector := projection.New(projection.WithLogger(logger))
	h := &Harness{
		store: st,
		coordinator: commit.New(
			commit.WithProjector(projector),
			commit.WithClock(clock),
			commit.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.CampaignID)),
			commit.WithEnricher(commit.RecapEnricher{Clock: clock}),
			commit.WithLogger(logger),
		),
		logger: logger,
	}

	genesis, title, err := scenario.genesis()
	if err != nil {
		return nil, fmt.Errorf("failed to build genesis: %w", err)
	}
	campaign, err := h.coordinator.CreateCampaign(ctx, st, title, genesis)
	if err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	h.campaignID = campaign.ID

	result := NewResult()
	result.CampaignID = campaign.ID
	for i, step := range scenario.Turns {
		ev, err := h.playTurn(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i+1, err)
		}
		result.AddTrace(ev)
		for _, msg := range checkExpect(ev, step.Expect) {
			result.AddError(msg)
		}
	}

	actx := &AssertionContext{
		Ctx:        ctx,
		Store:      st,
		CampaignID: campaign.ID,
		Projector:  projector,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// playTurn runs one step. A turn that fails inside the pipeline is
// recorded in the trace; only storage failures abort the scenario.
func (h *Harness) playTurn(ctx context.Context, n int, step TurnStep) (TraceEvent, error) {
	script := scriptedTurn{step: step}
	orch := pipeline.New(h.coordinator,
		pipeline.WithMechanic(script),
		pipeline.WithEncounter(script),
		pipeline.WithWorldReactor(script),
		pipeline.WithNarrator(script),
		pipeline.WithLogger(h.logger),
	)

	ev := TraceEvent{
		Step:   n,
		Input:  step.Input,
		Stages: []string{},
		Events: []string{},
	}
	res, err := orch.RunTurn(ctx, h.store, pipeline.TurnInput{
		CampaignID: h.campaignID,
		Input:      step.Input,
		RNGSeed:    step.Seed,
	})
	if err != nil {
		stage := pipeline.FailedStage(err)
		if stage == "" {
			return ev, err
		}
		h.logger.Debug("scenario turn failed", "step", n, "stage", stage, "error", err)
		ev.Error = string(stage)
		c, cerr := h.store.GetCampaign(ctx, h.campaignID)
		if cerr != nil {
			return ev, cerr
		}
		ev.TurnNumber = c.TurnNumber
		return ev, nil
	}

	ev.Route = string(res.Route)
	ev.ActionClass = res.Intent.ActionClass
	ev.RequiresResolution = res.Intent.RequiresResolution
	ev.Committed = res.Committed
	ev.TurnNumber = res.TurnNumber
	for _, s := range res.Trace {
		ev.Stages = append(ev.Stages, string(s))
	}
	if !res.Committed {
		ev.Text = res.MetaText
		return ev, nil
	}
	ev.Text = res.Rendered.Text
	ev.BatchHash = res.BatchHash

	records, err := h.store.GetEvents(ctx, h.campaignID, res.TurnNumber-1, true)
	if err != nil {
		return ev, err
	}
	for _, r := range records {
		if r.TurnNumber == res.TurnNumber {
			ev.Events = append(ev.Events, string(r.Kind()))
		}
	}
	return ev, nil
}

func checkExpect(ev TraceEvent, exp *ExpectClause) []string {
	if exp == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("step %d: unexpected failure in stage %s", ev.Step, ev.Error)}
		}
		return nil
	}
	var errs []string
	if exp.Error != ev.Error {
		errs = append(errs, fmt.Sprintf("step %d: expected error stage %q, got %q", ev.Step, exp.Error, ev.Error))
	}
	if exp.Route != "" && exp.Route != ev.Route {
		errs = append(errs, fmt.Sprintf("step %d: expected route %q, got %q", ev.Step, exp.Route, ev.Route))
	}
	if exp.ActionClass != "" && exp.ActionClass != ev.ActionClass {
		errs = append(errs, fmt.Sprintf("step %d: expected action class %q, got %q", ev.Step, exp.ActionClass, ev.ActionClass))
	}
	if exp.TurnNumber != nil && *exp.TurnNumber != ev.TurnNumber {
		errs = append(errs, fmt.Sprintf("step %d: expected turn %d, got %d", ev.Step, *exp.TurnNumber, ev.TurnNumber))
	}
	if exp.Committed != nil && *exp.Committed != ev.Committed {
		errs = append(errs, fmt.Sprintf("step %d: expected committed=%v, got %v", ev.Step, *exp.Committed, ev.Committed))
	}
	return errs
}
