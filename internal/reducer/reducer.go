package reducer

import (
	"context"

	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/rules"
)

// Reducer folds records with a fixed set of rule options.
type Reducer struct {
	opts rules.Options
}

// New returns a reducer using opts.
func New(opts rules.Options) Reducer {
	return Reducer{opts: opts}
}

var defaultReducer = New(rules.DefaultOptions())

// Apply returns s with r applied. s is not modified.
func (r Reducer) Apply(s State, rec event.Record) State {
	next := s.Clone()
	handled, err := rules.Apply(context.Background(), memWorld{s: &next}, rec.TurnNumber, rec.Event, r.opts)
	if !handled || err != nil {
		// memWorld never fails; err means an uninterpretable payload.
		next = s.Clone()
		next.Unhandled = append(next.Unhandled, rec)
	}
	next.TurnNumber = max(next.TurnNumber, rec.TurnNumber)
	return next
}

// Reduce left-folds records over s in slice order.
func (r Reducer) Reduce(s State, records []event.Record) State {
	// Clone once and fold into the copy.
	next := s.Clone()
	for _, rec := range records {
		handled, err := rules.Apply(context.Background(), memWorld{s: &next}, rec.TurnNumber, rec.Event, r.opts)
		if !handled || err != nil {
			next.Unhandled = append(next.Unhandled, rec)
		}
		next.TurnNumber = max(next.TurnNumber, rec.TurnNumber)
	}
	return next
}

// Apply applies one record with default options.
func Apply(s State, rec event.Record) State {
	return defaultReducer.Apply(s, rec)
}

// Reduce folds records with default options.
func Reduce(s State, records []event.Record) State {
	return defaultReducer.Reduce(s, records)
}
