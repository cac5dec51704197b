// Package seed loads campaign seed files and turns them into genesis
// events.
//
// A seed can be written in CUE, JSON or YAML. Every format is checked
// against the same CUE schema before it is decoded, so a seed that loads
// always produces a genesis batch that passes event validation.
package seed

import (
	"fmt"
	"slices"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// SourceSeed marks world events written by the seed.
const SourceSeed = "seed"

// Character describes the player or an NPC present at turn 0.
type Character struct {
	ID           string         `json:"id" yaml:"id"`
	Name         string         `json:"name" yaml:"name"`
	Location     string         `json:"location" yaml:"location"`
	Region       string         `json:"region,omitempty" yaml:"region,omitempty"`
	HP           int            `json:"hp" yaml:"hp"`
	HPMax        int            `json:"hp_max,omitempty" yaml:"hp_max,omitempty"`
	Stats        map[string]int `json:"stats,omitempty" yaml:"stats,omitempty"`
	Credits      int            `json:"credits,omitempty" yaml:"credits,omitempty"`
	Relationship *int           `json:"relationship,omitempty" yaml:"relationship,omitempty"`
}

// Item is a starting holding.
type Item struct {
	Owner    string `json:"owner" yaml:"owner"`
	Item     string `json:"item" yaml:"item"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// Seed is a campaign's starting state.
type Seed struct {
	Title            string         `json:"title" yaml:"title"`
	Player           Character      `json:"player" yaml:"player"`
	NPCs             []Character    `json:"npcs,omitempty" yaml:"npcs,omitempty"`
	Items            []Item         `json:"items,omitempty" yaml:"items,omitempty"`
	Flags            map[string]any `json:"flags,omitempty" yaml:"flags,omitempty"`
	WorldTimeMinutes int            `json:"world_time_minutes,omitempty" yaml:"world_time_minutes,omitempty"`
	Opening          string         `json:"opening,omitempty" yaml:"opening,omitempty"`
}

// check enforces the cross-field rules the schema cannot express.
func (s Seed) check() error {
	seen := map[string]bool{}
	for _, c := range append([]Character{s.Player}, s.NPCs...) {
		if seen[c.ID] {
			return fmt.Errorf("duplicate character id %q", c.ID)
		}
		seen[c.ID] = true
		if c.HPMax != 0 && c.HPMax < c.HP {
			return fmt.Errorf("character %q: hp_max %d below hp %d", c.ID, c.HPMax, c.HP)
		}
	}
	for i, it := range s.Items {
		if !seen[it.Owner] {
			return fmt.Errorf("items[%d]: unknown owner %q", i, it.Owner)
		}
	}
	return nil
}

func spawn(c Character, kind domain.CharacterKind) event.Event {
	return event.New(event.EntitySpawn{
		CharacterID:   c.ID,
		Name:          c.Name,
		CharacterKind: kind,
		Location:      c.Location,
		Region:        c.Region,
		HP:            c.HP,
		HPMax:         c.HPMax,
		Stats:         c.Stats,
		Credits:       c.Credits,
		Relationship:  c.Relationship,
	})
}

// Genesis returns the turn-0 events for the seed: spawns, holdings,
// flags in key order, the starting clock and the opening note.
func (s Seed) Genesis() []event.Event {
	events := []event.Event{spawn(s.Player, domain.KindPlayer)}
	for _, npc := range s.NPCs {
		events = append(events, spawn(npc, domain.KindNPC))
	}
	for _, it := range s.Items {
		events = append(events, event.New(event.ItemGet{OwnerID: it.Owner, Item: it.Item, Quantity: it.Quantity}))
	}
	keys := make([]string, 0, len(s.Flags))
	for k := range s.Flags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		events = append(events, event.New(event.FlagSet{Key: k, Value: s.Flags[k]}))
	}
	if s.WorldTimeMinutes > 0 {
		events = append(events, event.New(event.WorldTimeAdvance{Mode: event.TimeSet, Minutes: s.WorldTimeMinutes}))
	}
	if s.Opening != "" {
		events = append(events, event.New(event.WorldEvent{Summary: s.Opening, Source: SourceSeed}))
	}
	return events
}
