package commit

import (
	"slices"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/reducer"
	"github.com/roach88/saga/internal/rules"
)

// DepartReasonDefeated is the reason on ENTITY_DEPART events the
// coordinator adds for NPCs driven to zero hit points.
const DepartReasonDefeated = "defeated"

// impliedEvents returns the batch extended with the events a turn implies:
//   - WORLD_TIME_ADVANCE(add, timeCost) when the batch has a time cost and
//     no explicit time event.
//   - ENTITY_DEPART(defeated) for each active NPC the batch drives from
//     positive hit points to zero, unless the batch already departs it.
//
// Derived events are appended after the batch, NPCs in id order.
func impliedEvents(pre domain.Snapshot, turn int, batch []event.Event, timeCost int, opts rules.Options) []event.Event {
	out := slices.Clone(batch)

	if timeCost > 0 && !slices.ContainsFunc(batch, isKind(event.KindWorldTimeAdvance)) {
		out = append(out, event.New(event.WorldTimeAdvance{Mode: event.TimeAdd, Minutes: timeCost}))
	}

	departing := map[string]bool{}
	for _, ev := range batch {
		if d, ok := ev.Payload.(event.EntityDepart); ok {
			departing[d.CharacterID] = true
		}
	}

	records := make([]event.Record, len(out))
	for i, ev := range out {
		records[i] = event.Record{CampaignID: pre.Campaign.ID, TurnNumber: turn, Event: ev}
	}
	post := reducer.New(opts).Reduce(reducer.FromSnapshot(pre), records)

	ids := make([]string, 0, len(post.Characters))
	for id := range post.Characters {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		after := post.Characters[id]
		if after.Kind != domain.KindNPC || after.HPCurrent > 0 || after.Retired() || departing[id] {
			continue
		}
		// Spawned-dead and already-dead NPCs stay where they are.
		before, existed := pre.Characters[id]
		if !existed || before.HPCurrent <= 0 {
			continue
		}
		out = append(out, event.New(event.EntityDepart{CharacterID: id, Reason: DepartReasonDefeated}))
	}
	return out
}

func isKind(k event.Kind) func(event.Event) bool {
	return func(e event.Event) bool {
		return e.Kind() == k
	}
}
