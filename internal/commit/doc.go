// Package commit is the single writer of saga. A Coordinator turns an
// in-memory event batch into a durable turn:
//
//	begin → reserve turn number → implied events → append → project →
//	set campaign turn → rendered turn → commit
//
// Any error rolls the whole transaction back, so a failed turn writes
// nothing and consumes no turn number. Enrichers run only after a
// successful commit and can never fail the turn.
package commit
