package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/store"
)

const tracerName = "github.com/roach88/saga/internal/pipeline"

// Stage is one node of the graph: a transform plus a transition selector.
// Next returning "" ends the turn without a commit.
type Stage struct {
	Name StageName
	Run  func(ctx context.Context, s TurnState) (TurnState, error)
	Next func(s TurnState) StageName
}

// Result is what a turn produced. For committed turns Snapshot and
// Rendered are reloaded from storage after the commit.
type Result struct {
	Route      Route
	Intent     Intent
	TurnNumber int
	Committed  bool
	Snapshot   domain.Snapshot
	Rendered   domain.RenderedTurn
	Trace      []StageName
	BatchHash  string
	MetaText   string
}

// Planned is a turn run up to, but not including, the commit stage.
type Planned struct {
	State TurnState
	// Commit is false when the route ended without needing a write.
	Commit bool
	// BatchHash covers the events the stages produced, before implied
	// events are added at commit time.
	BatchHash string
}

// Orchestrator drives turns through the stage graph. It is immutable after
// New and safe for concurrent use.
type Orchestrator struct {
	coordinator *commit.Coordinator
	router      Router
	mechanic    Mechanic
	encounter   Encounter
	world       WorldReactor
	narrator    Narrator
	meta        MetaHandler
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMechanic sets the mechanic collaborator.
func WithMechanic(m Mechanic) Option {
	return func(o *Orchestrator) {
		o.mechanic = m
	}
}

// WithEncounter sets the encounter collaborator.
func WithEncounter(e Encounter) Option {
	return func(o *Orchestrator) {
		o.encounter = e
	}
}

// WithWorldReactor sets the world reaction collaborator.
func WithWorldReactor(w WorldReactor) Option {
	return func(o *Orchestrator) {
		o.world = w
	}
}

// WithNarrator sets the narrator.
func WithNarrator(n Narrator) Option {
	return func(o *Orchestrator) {
		o.narrator = n
	}
}

// WithMetaHandler sets the handler for out-of-fiction commands.
func WithMetaHandler(m MetaHandler) Option {
	return func(o *Orchestrator) {
		o.meta = m
	}
}

// WithTracerProvider sets where turn spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		o.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator that commits through coordinator. Unset
// collaborators default to the Noop implementations and EchoNarrator.
func New(coordinator *commit.Coordinator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		coordinator: coordinator,
		router:      NewRouter(),
		mechanic:    NoopMechanic{},
		encounter:   NoopEncounter{},
		world:       NoopWorldReactor{},
		narrator:    EchoNarrator{},
		meta:        DefaultMeta{},
		tracer:      otel.Tracer(tracerName),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Router returns the classifier used by the router stage.
func (o *Orchestrator) Router() Router {
	return o.router
}

// graph builds the stage table. The meta stage reads the stored recap, so
// the table is bound to one store per call.
func (o *Orchestrator) graph(st *store.Store) map[StageName]Stage {
	to := func(name StageName) func(TurnState) StageName {
		return func(TurnState) StageName { return name }
	}
	return map[StageName]Stage{
		StageRouter: {
			Name: StageRouter,
			Run: func(_ context.Context, s TurnState) (TurnState, error) {
				s.Intent = o.router.Classify(s.Input)
				return s, nil
			},
			Next: func(s TurnState) StageName {
				switch s.Intent.Route {
				case RouteMeta:
					return StageMeta
				case RouteMechanic:
					return StageMechanic
				default:
					return StageEncounter
				}
			},
		},
		StageMeta: {
			Name: StageMeta,
			Run: func(ctx context.Context, s TurnState) (TurnState, error) {
				recap, ok, err := st.GetRecap(ctx, s.CampaignID)
				if err != nil {
					return s, err
				}
				if ok {
					s.Recap = recap.Text
				}
				text, err := o.meta.Handle(ctx, s)
				if err != nil {
					return s, err
				}
				s.MetaText = text
				return s, nil
			},
			Next: to(""),
		},
		StageMechanic: {
			Name: StageMechanic,
			Run: func(ctx context.Context, s TurnState) (TurnState, error) {
				out, err := o.mechanic.Resolve(ctx, s)
				if err != nil {
					return s, err
				}
				return s.absorb(out), nil
			},
			Next: to(StageEncounter),
		},
		StageEncounter: {
			Name: StageEncounter,
			Run: func(ctx context.Context, s TurnState) (TurnState, error) {
				out, err := o.encounter.Evaluate(ctx, s)
				if err != nil {
					return s, err
				}
				return s.absorb(out), nil
			},
			Next: to(StageWorldReaction),
		},
		StageWorldReaction: {
			Name: StageWorldReaction,
			Run: func(ctx context.Context, s TurnState) (TurnState, error) {
				out, err := o.world.React(ctx, s)
				if err != nil {
					return s, err
				}
				return s.absorb(out), nil
			},
			Next: to(StageNarrative),
		},
		StageNarrative: {
			Name: StageNarrative,
			Run: func(ctx context.Context, s TurnState) (TurnState, error) {
				n, err := o.narrator.Narrate(ctx, s)
				if err != nil {
					return s, err
				}
				s.Narration = commit.Narration{
					Text:      n.Text,
					Citations: n.Citations,
					Choices:   n.Choices,
				}
				return s.absorb(Output{Events: n.Events}), nil
			},
			Next: to(StageCommit),
		},
	}
}

// Plan runs every stage before commit and validates the resulting batch.
// It never writes.
func (o *Orchestrator) Plan(ctx context.Context, st *store.Store, in TurnInput) (Planned, error) {
	if in.CampaignID == "" {
		return Planned{}, ErrNoCampaign
	}
	snap, err := st.LoadSnapshot(ctx, in.CampaignID)
	if err != nil {
		return Planned{}, fmt.Errorf("plan turn: %w", err)
	}

	graph := o.graph(st)
	s := newTurnState(in, snap)
	name := StageRouter
	for name != "" && name != StageCommit {
		stage, ok := graph[name]
		if !ok {
			return Planned{}, &StageError{Stage: name, Err: fmt.Errorf("no such stage")}
		}
		s = s.visit(name)
		s, err = stage.Run(ctx, s)
		if err != nil {
			return Planned{}, &StageError{Stage: name, Err: err}
		}
		o.logger.Debug("stage complete",
			"campaign_id", in.CampaignID,
			"stage", name,
			"events", len(s.Events),
		)
		name = stage.Next(s)
	}

	p := Planned{State: s, Commit: name == StageCommit}
	if !p.Commit {
		return p, nil
	}
	s.Events, err = event.TypedBatch(s.Events)
	if err != nil {
		return Planned{}, &StageError{Stage: StageCommit, Err: err}
	}
	if err := o.coordinator.Validator().ValidateBatch(s.Events); err != nil {
		return Planned{}, &StageError{Stage: StageCommit, Err: err}
	}
	p.BatchHash, err = domain.HashCanonical(s.Events)
	if err != nil {
		return Planned{}, &StageError{Stage: StageCommit, Err: err}
	}
	return p, nil
}

// RunTurn plans a turn and, unless it took the meta route, commits it.
func (o *Orchestrator) RunTurn(ctx context.Context, st *store.Store, in TurnInput) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.turn",
		trace.WithAttributes(attribute.String("saga.campaign_id", in.CampaignID)),
	)
	defer span.End()

	res, err := o.runTurn(ctx, st, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		return Result{}, err
	}
	span.SetAttributes(
		attribute.String("saga.route", string(res.Route)),
		attribute.Int("saga.turn_number", res.TurnNumber),
	)
	return res, nil
}

func (o *Orchestrator) runTurn(ctx context.Context, st *store.Store, in TurnInput) (Result, error) {
	p, err := o.Plan(ctx, st, in)
	if err != nil {
		return Result{}, err
	}
	s := p.State
	if !p.Commit {
		return Result{
			Route:      s.Intent.Route,
			Intent:     s.Intent,
			TurnNumber: s.Snapshot.Campaign.TurnNumber,
			Snapshot:   s.Snapshot,
			Trace:      s.Trace,
			MetaText:   s.MetaText,
		}, nil
	}

	s = s.visit(StageCommit)
	committed, err := o.coordinator.Commit(ctx, st, s.Batch())
	if err != nil {
		return Result{}, &StageError{Stage: StageCommit, Err: err}
	}

	snap, err := st.LoadSnapshot(ctx, in.CampaignID)
	if err != nil {
		return Result{}, fmt.Errorf("reload snapshot: %w", err)
	}
	rendered, ok, err := st.GetRenderedTurn(ctx, in.CampaignID, committed.TurnNumber)
	if err != nil {
		return Result{}, fmt.Errorf("reload rendered turn: %w", err)
	}
	if !ok {
		return Result{}, fmt.Errorf("rendered turn %d missing after commit", committed.TurnNumber)
	}

	o.logger.Info("turn complete",
		"campaign_id", in.CampaignID,
		"turn", committed.TurnNumber,
		"route", s.Intent.Route,
		"action_class", s.Intent.ActionClass,
	)
	return Result{
		Route:      s.Intent.Route,
		Intent:     s.Intent,
		TurnNumber: committed.TurnNumber,
		Committed:  true,
		Snapshot:   snap,
		Rendered:   rendered,
		Trace:      s.Trace,
		BatchHash:  committed.BatchHash,
	}, nil
}
