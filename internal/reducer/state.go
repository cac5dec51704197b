package reducer

import (
	"maps"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// CampaignState is the campaign-level part of the reduced state.
type CampaignState struct {
	WorldFlags        map[string]any           `json:"world_flags"`
	WorldTime         int                      `json:"world_time_minutes"`
	RecentWorldEvents []domain.WorldEventEntry `json:"recent_world_events"`
}

// State is the canonical in-memory view of a campaign.
type State struct {
	Campaign   CampaignState               `json:"campaign"`
	Characters map[string]domain.Character `json:"characters"`
	Inventory  map[domain.InventoryKey]int `json:"-"`
	TurnNumber int                         `json:"turn_number"`
	// Unhandled keeps records whose kind has no handler, in log order.
	Unhandled []event.Record `json:"unhandled_events"`
}

// InitialState returns the empty state every fold starts from.
func InitialState() State {
	return State{
		Campaign: CampaignState{
			WorldFlags:        map[string]any{},
			RecentWorldEvents: []domain.WorldEventEntry{},
		},
		Characters: map[string]domain.Character{},
		Inventory:  map[domain.InventoryKey]int{},
		Unhandled:  []event.Record{},
	}
}

// FromSnapshot seeds a state from stored projections so a batch can be
// folded on top of the current committed view.
func FromSnapshot(snap domain.Snapshot) State {
	s := InitialState()
	ws := snap.Campaign.WorldState.Clone()
	s.Campaign.WorldFlags = ws.Flags
	s.Campaign.WorldTime = ws.WorldTimeMinutes
	s.Campaign.RecentWorldEvents = ws.RecentWorldEvents
	for id, c := range snap.Characters {
		s.Characters[id] = c.Clone()
	}
	maps.Copy(s.Inventory, snap.Inventory)
	s.TurnNumber = snap.Campaign.TurnNumber
	return s
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		Campaign: CampaignState{
			WorldFlags:        maps.Clone(s.Campaign.WorldFlags),
			WorldTime:         s.Campaign.WorldTime,
			RecentWorldEvents: append([]domain.WorldEventEntry{}, s.Campaign.RecentWorldEvents...),
		},
		Characters: make(map[string]domain.Character, len(s.Characters)),
		Inventory:  maps.Clone(s.Inventory),
		TurnNumber: s.TurnNumber,
		Unhandled:  append([]event.Record{}, s.Unhandled...),
	}
	if out.Campaign.WorldFlags == nil {
		out.Campaign.WorldFlags = map[string]any{}
	}
	if out.Inventory == nil {
		out.Inventory = map[domain.InventoryKey]int{}
	}
	for id, c := range s.Characters {
		out.Characters[id] = c.Clone()
	}
	return out
}

// WorldState renders the campaign part as a world-state document.
func (s State) WorldState() domain.WorldState {
	return domain.WorldState{
		WorldTimeMinutes:  s.Campaign.WorldTime,
		Flags:             maps.Clone(s.Campaign.WorldFlags),
		RecentWorldEvents: append([]domain.WorldEventEntry{}, s.Campaign.RecentWorldEvents...),
	}
}

// Snapshot converts the state to the shape LoadSnapshot returns, for
// comparison with storage. Campaign identity fields are left zero.
func (s State) Snapshot() domain.Snapshot {
	c := s.Clone()
	return domain.Snapshot{
		Campaign: domain.Campaign{
			TurnNumber: c.TurnNumber,
			WorldState: c.WorldState(),
		},
		Characters: c.Characters,
		Inventory:  c.Inventory,
	}
}
