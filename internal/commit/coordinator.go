package commit

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/projection"
	"github.com/roach88/saga/internal/store"
)

const tracerName = "github.com/roach88/saga/internal/commit"

// Narration is the player-facing output persisted with a turn.
type Narration struct {
	Text      string            `json:"text"`
	Citations []domain.Citation `json:"citations"`
	Choices   []domain.Choice   `json:"choices"`
}

// Batch is everything a turn produced in memory.
type Batch struct {
	CampaignID      string
	Events          []event.Event
	TimeCostMinutes int
	Narration       Narration
}

// Committed describes a durable turn.
type Committed struct {
	CampaignID string
	TurnNumber int
	// Records are the appended events, implied events included.
	Records   []event.Record
	Rendered  domain.RenderedTurn
	BatchHash string
}

// Enricher is best-effort work layered on a committed turn, such as
// summary compression. Errors are logged and never fail the turn.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, st *store.Store, c Committed) error
}

// FaultHook is called after each commit step; a non-nil error aborts the
// turn at that step. Used to test rollback.
type FaultHook func(Step) error

// Coordinator is the single writer. It holds no per-turn state and is safe
// for concurrent use; concurrent turns on one campaign serialize on the
// database write lock and the turn-number compare-and-swap.
type Coordinator struct {
	projector *projection.Engine
	validator *event.Validator
	clock     domain.Clock
	ids       domain.IDGenerator
	faultHook FaultHook
	enrichers []Enricher
	tracer    trace.Tracer
	logger    *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProjector sets the projection engine.
func WithProjector(p *projection.Engine) Option {
	return func(c *Coordinator) {
		c.projector = p
	}
}

// WithClock sets the clock used for created_at columns.
func WithClock(clock domain.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithIDGenerator sets the campaign id generator.
func WithIDGenerator(ids domain.IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = ids
	}
}

// WithFaultHook installs a hook invoked after every step.
func WithFaultHook(h FaultHook) Option {
	return func(c *Coordinator) {
		c.faultHook = h
	}
}

// WithEnricher adds a post-commit enricher. Enrichers run in the order added.
func WithEnricher(e Enricher) Option {
	return func(c *Coordinator) {
		c.enrichers = append(c.enrichers, e)
	}
}

// WithTracerProvider sets where commit spans are recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		projector: projection.New(),
		validator: event.MustValidator(),
		clock:     domain.SystemClock{},
		ids:       domain.UUIDv7Generator{},
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Projector returns the projection engine the coordinator writes through.
func (c *Coordinator) Projector() *projection.Engine {
	return c.projector
}

// Validator returns the payload validator applied before every write.
func (c *Coordinator) Validator() *event.Validator {
	return c.validator
}

func (c *Coordinator) fault(step Step) error {
	if c.faultHook == nil {
		return nil
	}
	return c.faultHook(step)
}

// CreateCampaign inserts a campaign and projects its genesis events at
// turn 0 in one transaction. Turn 0 is not a committed turn: the campaign
// starts at turn_number 0 and its first Commit is turn 1.
func (c *Coordinator) CreateCampaign(ctx context.Context, st *store.Store, title string, genesis []event.Event) (domain.Campaign, error) {
	genesis, err := event.TypedBatch(genesis)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	if err := c.validator.ValidateBatch(genesis); err != nil {
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}
	id := c.ids.Generate()
	now := c.clock.Now()

	err = st.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertCampaign(ctx, id, title, domain.NewWorldState(), now); err != nil {
			return err
		}
		if _, err := tx.AppendEvents(ctx, id, 0, genesis, now); err != nil {
			return err
		}
		return c.projector.Apply(ctx, tx, id, 0, genesis)
	})
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("create campaign: %w", err)
	}

	c.logger.Info("campaign created",
		"campaign_id", id,
		"genesis_events", len(genesis),
	)
	return st.GetCampaign(ctx, id)
}

// Commit makes a batch durable as the campaign's next turn. On any error
// the transaction is rolled back and a *CommitError is returned.
func (c *Coordinator) Commit(ctx context.Context, st *store.Store, b Batch) (Committed, error) {
	ctx, span := c.tracer.Start(ctx, "commit.turn",
		trace.WithAttributes(
			attribute.String("saga.campaign_id", b.CampaignID),
			attribute.Int("saga.batch_size", len(b.Events)),
		),
	)
	defer span.End()

	committed, err := c.commit(ctx, st, b)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		c.logger.Warn("turn commit failed",
			"campaign_id", b.CampaignID,
			"step", FailedStep(err),
			"error", err,
		)
		return Committed{}, err
	}
	span.SetAttributes(
		attribute.Int("saga.turn_number", committed.TurnNumber),
		attribute.Int("saga.event_count", len(committed.Records)),
	)

	c.logger.Info("turn committed",
		"campaign_id", committed.CampaignID,
		"turn", committed.TurnNumber,
		"events", len(committed.Records),
	)

	c.enrich(ctx, st, committed)
	return committed, nil
}

func (c *Coordinator) commit(ctx context.Context, st *store.Store, b Batch) (Committed, error) {
	fail := func(step Step, err error) (Committed, error) {
		return Committed{}, &CommitError{Step: step, CampaignID: b.CampaignID, Err: err}
	}
	batch, err := event.TypedBatch(b.Events)
	if err != nil {
		return fail(StepValidate, err)
	}
	if err := c.validator.ValidateBatch(batch); err != nil {
		return fail(StepValidate, err)
	}
	if err := c.fault(StepValidate); err != nil {
		return fail(StepValidate, err)
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		return fail(StepBegin, err)
	}
	defer tx.Rollback()
	if err := c.fault(StepBegin); err != nil {
		return fail(StepBegin, err)
	}

	turn, err := tx.ReserveNextTurnNumber(ctx, b.CampaignID)
	if err == nil {
		err = c.fault(StepReserve)
	}
	if err != nil {
		return fail(StepReserve, err)
	}

	pre, err := tx.LoadSnapshot(ctx, b.CampaignID)
	if err != nil {
		return fail(StepImplied, err)
	}
	events := impliedEvents(pre, turn, batch, b.TimeCostMinutes, c.projector.Rules())
	hash, err := domain.HashCanonical(events)
	if err == nil {
		err = c.fault(StepImplied)
	}
	if err != nil {
		return fail(StepImplied, err)
	}

	now := c.clock.Now()
	records, err := tx.AppendEvents(ctx, b.CampaignID, turn, events, now)
	if err == nil {
		err = c.fault(StepAppend)
	}
	if err != nil {
		return fail(StepAppend, err)
	}

	err = c.projector.Apply(ctx, tx, b.CampaignID, turn, events)
	if err == nil {
		err = c.fault(StepProject)
	}
	if err != nil {
		return fail(StepProject, err)
	}

	err = tx.SetCampaignTurn(ctx, b.CampaignID, turn, now)
	if err == nil {
		err = c.fault(StepSetTurn)
	}
	if err != nil {
		return fail(StepSetTurn, err)
	}

	rendered := domain.RenderedTurn{
		CampaignID: b.CampaignID,
		TurnNumber: turn,
		Text:       b.Narration.Text,
		Citations:  nonNil(b.Narration.Citations),
		Choices:    nonNil(b.Narration.Choices),
		BatchHash:  hash,
		CreatedAt:  now,
	}
	err = tx.InsertRenderedTurn(ctx, rendered)
	if err == nil {
		err = c.fault(StepRender)
	}
	if err != nil {
		return fail(StepRender, err)
	}

	if err := tx.Commit(); err != nil {
		return fail(StepCommit, err)
	}

	return Committed{
		CampaignID: b.CampaignID,
		TurnNumber: turn,
		Records:    records,
		Rendered:   rendered,
		BatchHash:  hash,
	}, nil
}

func (c *Coordinator) enrich(ctx context.Context, st *store.Store, committed Committed) {
	for _, e := range c.enrichers {
		if err := e.Enrich(ctx, st, committed); err != nil {
			c.logger.Warn("enricher failed",
				"enricher", e.Name(),
				"campaign_id", committed.CampaignID,
				"turn", committed.TurnNumber,
				"error", err,
			)
		}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
