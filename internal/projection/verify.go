package projection

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/reducer"
	"github.com/roach88/saga/internal/store"
)

// Divergence is one field where the projection and the replayed log
// disagree. Values are nil when the entity is absent on that side.
type Divergence struct {
	Path      string `json:"path"`
	Projected any    `json:"projected"`
	Replayed  any    `json:"replayed"`
}

// Report is the outcome of Verify.
type Report struct {
	CampaignID  string       `json:"campaign_id"`
	TurnNumber  int          `json:"turn_number"`
	EventCount  int          `json:"event_count"`
	Unhandled   int          `json:"unhandled_events"`
	Divergences []Divergence `json:"divergences"`
}

// OK reports whether the projection matches the replay exactly.
func (r Report) OK() bool {
	return len(r.Divergences) == 0
}

// Verify folds the campaign's full log, hidden events included, through the
// reducer and compares the result with the stored projection. Projections
// stay the read path; this is a consistency check, not a rebuild.
func (e *Engine) Verify(ctx context.Context, st *store.Store, campaignID string) (Report, error) {
	var (
		snap    domain.Snapshot
		records []event.Record
		last    []domain.RenderedTurn
	)
	// One read transaction, so a turn committed meanwhile cannot show up
	// on only one side of the comparison.
	err := st.WithReadTx(ctx, func(tx *store.Tx) error {
		var err error
		if snap, err = tx.LoadSnapshot(ctx, campaignID); err != nil {
			return err
		}
		if records, err = tx.GetEvents(ctx, campaignID, -1, true); err != nil {
			return err
		}
		last, err = tx.ListRenderedTurns(ctx, campaignID, -1, 1)
		return err
	})
	if err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}

	replayed := reducer.New(e.opts).Reduce(reducer.InitialState(), records)
	// Turns that appended no events are only visible through their
	// rendered row.
	for _, rt := range last {
		replayed.TurnNumber = max(replayed.TurnNumber, rt.TurnNumber)
	}

	report := Report{
		CampaignID:  campaignID,
		TurnNumber:  snap.Campaign.TurnNumber,
		EventCount:  len(records),
		Unhandled:   len(replayed.Unhandled),
		Divergences: Compare(snap, replayed.Snapshot()),
	}
	return report, nil
}

// Compare lists every difference between a stored snapshot and a replayed
// one, ordered by path. Campaign identity and timestamps are ignored.
func Compare(projected, replayed domain.Snapshot) []Divergence {
	var out []Divergence
	add := func(path string, p, r any) {
		out = append(out, Divergence{Path: path, Projected: p, Replayed: r})
	}

	if projected.Campaign.TurnNumber != replayed.Campaign.TurnNumber {
		add("campaign.turn_number", projected.Campaign.TurnNumber, replayed.Campaign.TurnNumber)
	}

	pws, rws := projected.Campaign.WorldState, replayed.Campaign.WorldState
	if pws.WorldTimeMinutes != rws.WorldTimeMinutes {
		add("world.world_time_minutes", pws.WorldTimeMinutes, rws.WorldTimeMinutes)
	}
	for _, k := range unionKeys(pws.Flags, rws.Flags) {
		p, pok := pws.Flags[k]
		r, rok := rws.Flags[k]
		if pok != rok || !reflect.DeepEqual(p, r) {
			add("world.flags."+k, p, r)
		}
	}
	if !equalJSON(pws.RecentWorldEvents, rws.RecentWorldEvents) {
		add("world.recent_world_events", pws.RecentWorldEvents, rws.RecentWorldEvents)
	}

	for _, id := range unionKeys(projected.Characters, replayed.Characters) {
		p, pok := projected.Characters[id]
		r, rok := replayed.Characters[id]
		switch {
		case !pok:
			add("characters."+id, nil, r)
		case !rok:
			add("characters."+id, p, nil)
		default:
			out = append(out, compareFields("characters."+id, p, r)...)
		}
	}

	for _, k := range inventoryKeys(projected.Inventory, replayed.Inventory) {
		p, r := projected.Inventory[k], replayed.Inventory[k]
		if p != r {
			add(fmt.Sprintf("inventory.%s.%s", k.Owner, k.Item), p, r)
		}
	}

	if out == nil {
		out = []Divergence{}
	}
	return out
}

// compareFields diffs two values field by field through their JSON form.
func compareFields(prefix string, p, r any) []Divergence {
	pm, rm := toMap(p), toMap(r)
	var out []Divergence
	for _, k := range unionKeys(pm, rm) {
		if !reflect.DeepEqual(pm[k], rm[k]) {
			out = append(out, Divergence{Path: prefix + "." + k, Projected: pm[k], Replayed: rm[k]})
		}
	}
	return out
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return m
}

func equalJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func unionKeys[K cmp.Ordered, V any](a, b map[K]V) []K {
	keys := slices.Collect(maps.Keys(a))
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func inventoryKeys(a, b map[domain.InventoryKey]int) []domain.InventoryKey {
	keys := slices.Collect(maps.Keys(a))
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(x, y domain.InventoryKey) int {
		return cmp.Or(cmp.Compare(x.Owner, y.Owner), cmp.Compare(x.Item, y.Item))
	})
	return keys
}
