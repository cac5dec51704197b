package projection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/rules"
	"github.com/roach88/saga/internal/store"
)

// Engine applies events to projection storage.
type Engine struct {
	opts   rules.Options
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRules sets the rule options shared with the reducer.
func WithRules(opts rules.Options) Option {
	return func(e *Engine) {
		e.opts = opts
	}
}

// WithLogger sets the logger used for skipped events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		opts:   rules.DefaultOptions(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rule options, so a reducer can be built to match.
func (e *Engine) Rules() rules.Options {
	return e.opts
}

// Apply projects events, in slice order, for one turn of a campaign inside
// tx. Kinds without a handler are skipped. The first failing event aborts
// the call; the caller's transaction guard discards partial writes.
func (e *Engine) Apply(ctx context.Context, tx *store.Tx, campaignID string, turn int, events []event.Event) error {
	w := txWorld{tx: tx, campaignID: campaignID}
	for i, ev := range events {
		handled, err := rules.Apply(ctx, w, turn, ev, e.opts)
		if err != nil {
			return fmt.Errorf("project event %d of turn %d: %w", i, turn, err)
		}
		if !handled {
			e.logger.Debug("projection skipped event",
				"campaign_id", campaignID,
				"turn", turn,
				"type", ev.Kind(),
			)
		}
	}
	return nil
}
