// Package reducer folds an ordered event log into an in-memory State.
//
// The reducer is pure: Apply never mutates its input, and folding the same
// records always yields the same State. It shares its handlers with the
// storage projector, so reducing the full log of a campaign must reproduce
// what the projection tables hold.
package reducer
