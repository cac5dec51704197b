// Package pipeline runs one turn as a graph of stages over a TurnState
// value:
//
//	router → meta
//	router → mechanic → encounter → world_reaction → narrative → commit
//	router → encounter → world_reaction → narrative → commit
//
// Every stage before commit is a pure transform of the state plus calls to
// collaborators; only the commit stage writes, through the commit
// coordinator. An Orchestrator is immutable and holds no store: callers
// pass the store into each RunTurn.
package pipeline
