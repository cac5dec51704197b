package pipeline

import (
	"math/rand/v2"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// StageName identifies a node of the stage graph.
type StageName string

const (
	StageRouter        StageName = "router"
	StageMeta          StageName = "meta"
	StageMechanic      StageName = "mechanic"
	StageEncounter     StageName = "encounter"
	StageWorldReaction StageName = "world_reaction"
	StageNarrative     StageName = "narrative"
	StageCommit        StageName = "commit"
)

// pcgStream is the fixed second word of the PCG state.
const pcgStream = 0x5a6761_7475726e

// TurnInput is one player turn request.
type TurnInput struct {
	CampaignID string
	Input      string
	RNGSeed    uint64
}

// TurnState is the value threaded through the stages. Stages return a
// modified copy; the pre-turn Snapshot is read-only.
type TurnState struct {
	CampaignID string
	Input      string
	Intent     Intent
	Snapshot   domain.Snapshot

	Events          []event.Event
	TimeCostMinutes int
	Narration       commit.Narration
	MetaText        string
	// Recap is the stored rolling recap, loaded only on the meta route.
	Recap string

	Trace []StageName

	rng *rand.Rand
}

func newTurnState(in TurnInput, snap domain.Snapshot) TurnState {
	return TurnState{
		CampaignID: in.CampaignID,
		Input:      in.Input,
		Snapshot:   snap,
		rng:        rand.New(rand.NewPCG(in.RNGSeed, pcgStream)),
	}
}

// Rand returns the turn's seeded random source. Collaborators must draw
// all randomness from it so a turn is reproducible from its seed.
func (s TurnState) Rand() *rand.Rand {
	return s.rng
}

// absorb appends a collaborator's output to the pending batch.
func (s TurnState) absorb(out Output) TurnState {
	s.Events = append(append([]event.Event{}, s.Events...), out.Events...)
	s.TimeCostMinutes += max(out.TimeCostMinutes, 0)
	return s
}

func (s TurnState) visit(name StageName) TurnState {
	s.Trace = append(append([]StageName{}, s.Trace...), name)
	return s
}

// Batch is the commit request for the state.
func (s TurnState) Batch() commit.Batch {
	return commit.Batch{
		CampaignID:      s.CampaignID,
		Events:          s.Events,
		TimeCostMinutes: s.TimeCostMinutes,
		Narration:       s.Narration,
	}
}
