package harness

import (
	"context"

	"github.com/roach88/saga/internal/pipeline"
)

// scriptedTurn plays back one TurnStep as every pipeline collaborator.
type scriptedTurn struct {
	step TurnStep
}

func (s scriptedTurn) output(script *Script) (pipeline.Output, error) {
	if script == nil {
		return pipeline.Output{}, nil
	}
	events, err := toEvents(script.Events)
	if err != nil {
		return pipeline.Output{}, err
	}
	return pipeline.Output{Events: events, TimeCostMinutes: script.TimeCost}, nil
}

func (s scriptedTurn) Resolve(context.Context, pipeline.TurnState) (pipeline.Output, error) {
	return s.output(s.step.Mechanic)
}

func (s scriptedTurn) Evaluate(context.Context, pipeline.TurnState) (pipeline.Output, error) {
	return s.output(s.step.Encounter)
}

func (s scriptedTurn) React(context.Context, pipeline.TurnState) (pipeline.Output, error) {
	return s.output(s.step.World)
}

func (s scriptedTurn) Narrate(ctx context.Context, st pipeline.TurnState) (pipeline.Narration, error) {
	n := s.step.Narration
	if n == nil {
		return pipeline.EchoNarrator{}.Narrate(ctx, st)
	}
	events, err := toEvents(n.Events)
	if err != nil {
		return pipeline.Narration{}, err
	}
	return pipeline.Narration{
		Text:      n.Text,
		Citations: n.Citations,
		Choices:   n.Choices,
		Events:    events,
	}, nil
}
