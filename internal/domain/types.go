package domain

import (
	"cmp"
	"maps"
	"slices"
	"time"
)

// CharacterKind distinguishes the player character from NPCs.
type CharacterKind string

const (
	KindPlayer CharacterKind = "player"
	KindNPC    CharacterKind = "npc"
)

// Mood is the coarse label derived from a character's stress accumulator.
type Mood string

const (
	MoodCalm       Mood = "calm"
	MoodNeutral    Mood = "neutral"
	MoodDistressed Mood = "distressed"
)

// Campaign is the aggregate root. TurnNumber mirrors MAX(turn_number) of the
// committed log; Version and NextTurnNumber back optimistic turn reservation.
type Campaign struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	TurnNumber     int        `json:"turn_number"`
	WorldState     WorldState `json:"world_state"`
	Version        int64      `json:"version"`
	NextTurnNumber int        `json:"next_turn_number"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// WorldEventEntry is one slot of the rolling low-priority world event buffer.
type WorldEventEntry struct {
	Turn    int    `json:"turn"`
	Summary string `json:"summary"`
	Source  string `json:"source,omitempty"`
}

// WorldState is the schema-light document attached to a campaign.
// Keys saga does not own are carried through untouched in Extra.
type WorldState struct {
	WorldTimeMinutes  int               `json:"world_time_minutes"`
	Flags             map[string]any    `json:"flags"`
	RecentWorldEvents []WorldEventEntry `json:"recent_world_events"`
	Extra             map[string]any    `json:"extra,omitempty"`
}

// NewWorldState returns an empty document with non-nil collections.
func NewWorldState() WorldState {
	return WorldState{
		Flags:             map[string]any{},
		RecentWorldEvents: []WorldEventEntry{},
	}
}

// Clone returns a deep copy of the document's collections.
// Flag values are treated as immutable scalars.
func (w WorldState) Clone() WorldState {
	out := w
	out.Flags = maps.Clone(w.Flags)
	if out.Flags == nil {
		out.Flags = map[string]any{}
	}
	out.RecentWorldEvents = append([]WorldEventEntry{}, w.RecentWorldEvents...)
	if w.Extra != nil {
		out.Extra = maps.Clone(w.Extra)
	}
	return out
}

// Character is the normalized projection row for the player or an NPC.
// Only projection application mutates it.
type Character struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Kind         CharacterKind  `json:"kind"`
	Location     string         `json:"location"`
	Region       string         `json:"region"`
	HPCurrent    int            `json:"hp_current"`
	HPMax        int            `json:"hp_max"`
	Stats        map[string]int `json:"stats"`
	Stress       int            `json:"stress"`
	Mood         Mood           `json:"mood"`
	Relationship *int           `json:"relationship,omitempty"`
	Credits      int            `json:"credits"`
	SpawnedTurn  int            `json:"spawned_turn"`
}

// Clone returns a copy that shares no mutable state with c.
func (c Character) Clone() Character {
	out := c
	out.Stats = maps.Clone(c.Stats)
	if out.Stats == nil {
		out.Stats = map[string]int{}
	}
	if c.Relationship != nil {
		v := *c.Relationship
		out.Relationship = &v
	}
	return out
}

// Retired reports whether the character has been soft-retired (departed).
func (c Character) Retired() bool {
	return c.Location == ""
}

// InventoryKey identifies one holding.
type InventoryKey struct {
	Owner string `json:"owner_id"`
	Item  string `json:"item_name"`
}

// InventoryEntry is a positive holding of an item by an owner.
type InventoryEntry struct {
	Owner    string `json:"owner_id"`
	Item     string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

// Citation points at a source used to produce rendered narrative.
type Citation struct {
	Source string `json:"source"`
	Ref    string `json:"ref,omitempty"`
}

// Choice is a player-facing option offered after a turn.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// RenderedTurn is the write-once narrative output persisted for one turn.
type RenderedTurn struct {
	CampaignID string     `json:"campaign_id"`
	TurnNumber int        `json:"turn_number"`
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Choices    []Choice   `json:"choices"`
	BatchHash  string     `json:"batch_hash"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Snapshot is the queryable current state of one campaign.
type Snapshot struct {
	Campaign   Campaign             `json:"campaign"`
	Characters map[string]Character `json:"characters"`
	Inventory  map[InventoryKey]int `json:"-"`
}

// Character returns a character by id.
func (s Snapshot) Character(id string) (Character, bool) {
	c, ok := s.Characters[id]
	return c, ok
}

// Player returns the first player character, ordered by id.
func (s Snapshot) Player() (Character, bool) {
	var best Character
	found := false
	for _, c := range s.Characters {
		if c.Kind != KindPlayer {
			continue
		}
		if !found || c.ID < best.ID {
			best = c
			found = true
		}
	}
	return best, found
}

// Quantity returns how many of item owner holds.
func (s Snapshot) Quantity(owner, item string) int {
	return s.Inventory[InventoryKey{Owner: owner, Item: item}]
}

// InventoryOf lists an owner's holdings.
func (s Snapshot) InventoryOf(owner string) map[string]int {
	out := map[string]int{}
	for k, q := range s.Inventory {
		if k.Owner == owner {
			out[k.Item] = q
		}
	}
	return out
}

// InventoryEntries lists all holdings ordered by owner then item.
func (s Snapshot) InventoryEntries() []InventoryEntry {
	out := make([]InventoryEntry, 0, len(s.Inventory))
	for k, q := range s.Inventory {
		out = append(out, InventoryEntry{Owner: k.Owner, Item: k.Item, Quantity: q})
	}
	slices.SortFunc(out, func(a, b InventoryEntry) int {
		if c := cmp.Compare(a.Owner, b.Owner); c != 0 {
			return c
		}
		return cmp.Compare(a.Item, b.Item)
	})
	return out
}
