package rules

import (
	"context"
	"fmt"
	"maps"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// DefaultWorldEventCap is the size of the rolling world event buffer.
const DefaultWorldEventCap = 20

// Options tune handler behaviour that is configuration rather than rule.
// A zero WorldEventCap means DefaultWorldEventCap.
type Options struct {
	WorldEventCap int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{WorldEventCap: DefaultWorldEventCap}
}

func (o Options) worldEventCap() int {
	if o.WorldEventCap <= 0 {
		return DefaultWorldEventCap
	}
	return o.WorldEventCap
}

// Handler applies one payload at turn to w.
type Handler func(ctx context.Context, w World, turn int, p event.Payload, opts Options) error

var handlers = map[event.Kind]Handler{
	event.KindMove:             handleMove,
	event.KindDamage:           handleDamage,
	event.KindHeal:             handleHeal,
	event.KindItemGet:          handleItemGet,
	event.KindItemLose:         handleItemLose,
	event.KindFlagSet:          handleFlagSet,
	event.KindRelationship:     handleRelationship,
	event.KindPsychUpdate:      handlePsychUpdate,
	event.KindStatSet:          handleStatSet,
	event.KindCreditsChange:    handleCreditsChange,
	event.KindEntitySpawn:      handleEntitySpawn,
	event.KindEntityDepart:     handleEntityDepart,
	event.KindWorldTimeAdvance: handleWorldTimeAdvance,
	event.KindWorldEvent:       handleWorldEvent,
}

// Handles reports whether k has a handler.
func Handles(k event.Kind) bool {
	_, ok := handlers[k]
	return ok
}

// Apply dispatches ev to its handler. Kinds without a handler, and raw
// payloads carrying a known kind name, return handled=false and no error;
// callers decide how to record them.
func Apply(ctx context.Context, w World, turn int, ev event.Event, opts Options) (bool, error) {
	h, ok := handlers[ev.Kind()]
	if !ok {
		return false, nil
	}
	if _, raw := ev.Payload.(event.Unknown); raw {
		return false, nil
	}
	if err := h(ctx, w, turn, ev.Payload, opts); err != nil {
		return true, fmt.Errorf("apply %s: %w", ev.Kind(), err)
	}
	return true, nil
}

// payloadAs asserts the payload type a handler was registered for.
func payloadAs[T event.Payload](p event.Payload) (T, error) {
	v, ok := p.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected payload %T for %s", p, zero.Kind())
	}
	return v, nil
}

// updateCharacter loads id, applies fn and stores the result. A missing
// character makes the event a no-op; entities are created only by spawns.
func updateCharacter(ctx context.Context, w World, id string, fn func(*domain.Character)) error {
	c, ok, err := w.Character(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c = c.Clone()
	fn(&c)
	return w.UpdateCharacter(ctx, c)
}

func handleMove(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	m, err := payloadAs[event.Move](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, m.CharacterID, func(c *domain.Character) {
		c.Location = m.Location
		if m.Region != "" {
			c.Region = m.Region
		}
	})
}

func handleDamage(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	d, err := payloadAs[event.Damage](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, d.CharacterID, func(c *domain.Character) {
		c.HPCurrent = ApplyDamage(c.HPCurrent, d.Amount)
	})
}

func handleHeal(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	h, err := payloadAs[event.Heal](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, h.CharacterID, func(c *domain.Character) {
		c.HPCurrent = ApplyHeal(c.HPCurrent, h.Amount)
	})
}

func adjustInventory(ctx context.Context, w World, owner, item string, delta int) error {
	cur, err := w.Quantity(ctx, owner, item)
	if err != nil {
		return err
	}
	return w.SetQuantity(ctx, owner, item, AdjustQuantity(cur, delta))
}

func handleItemGet(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	g, err := payloadAs[event.ItemGet](p)
	if err != nil {
		return err
	}
	return adjustInventory(ctx, w, g.OwnerID, g.Item, g.Quantity)
}

func handleItemLose(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	l, err := payloadAs[event.ItemLose](p)
	if err != nil {
		return err
	}
	return adjustInventory(ctx, w, l.OwnerID, l.Item, -l.Quantity)
}

func updateWorld(ctx context.Context, w World, fn func(*domain.WorldState)) error {
	ws, err := w.WorldState(ctx)
	if err != nil {
		return err
	}
	ws = ws.Clone()
	fn(&ws)
	return w.PutWorldState(ctx, ws)
}

func handleFlagSet(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	f, err := payloadAs[event.FlagSet](p)
	if err != nil {
		return err
	}
	return updateWorld(ctx, w, func(ws *domain.WorldState) {
		ws.Flags[f.Key] = event.NormalizeValue(f.Value)
	})
}

func handleRelationship(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	r, err := payloadAs[event.Relationship](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, r.CharacterID, func(c *domain.Character) {
		c.Relationship = AddRelationship(c.Relationship, r.Delta)
	})
}

func handlePsychUpdate(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	u, err := payloadAs[event.PsychUpdate](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, u.CharacterID, func(c *domain.Character) {
		stress := c.Stress + u.StressDelta
		if u.Stress != nil {
			stress = *u.Stress
		}
		c.Stress = ClampStress(stress)
		c.Mood = NextMood(c.Mood, c.Stress)
	})
}

func handleStatSet(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	s, err := payloadAs[event.StatSet](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, s.CharacterID, func(c *domain.Character) {
		c.Stats[s.Stat] = s.Value
	})
}

func handleCreditsChange(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	cc, err := payloadAs[event.CreditsChange](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, cc.CharacterID, func(c *domain.Character) {
		c.Credits = AdjustCredits(c.Credits, cc.Delta)
	})
}

// SpawnedCharacter builds the row an ENTITY_SPAWN creates.
func SpawnedCharacter(s event.EntitySpawn, turn int) domain.Character {
	kind := s.CharacterKind
	if kind == "" {
		kind = domain.KindNPC
	}
	hpMax := s.HPMax
	if hpMax == 0 {
		hpMax = s.HP
	}
	c := domain.Character{
		ID:          s.CharacterID,
		Name:        s.Name,
		Kind:        kind,
		Location:    s.Location,
		Region:      s.Region,
		HPCurrent:   max(0, s.HP),
		HPMax:       hpMax,
		Stats:       maps.Clone(s.Stats),
		Mood:        domain.MoodNeutral,
		Credits:     max(0, s.Credits),
		SpawnedTurn: turn,
	}
	if c.Stats == nil {
		c.Stats = map[string]int{}
	}
	if s.Relationship != nil {
		v := *s.Relationship
		c.Relationship = &v
	}
	return c
}

func handleEntitySpawn(ctx context.Context, w World, turn int, p event.Payload, _ Options) error {
	s, err := payloadAs[event.EntitySpawn](p)
	if err != nil {
		return err
	}
	_, err = w.InsertCharacter(ctx, SpawnedCharacter(s, turn))
	return err
}

func handleEntityDepart(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	d, err := payloadAs[event.EntityDepart](p)
	if err != nil {
		return err
	}
	return updateCharacter(ctx, w, d.CharacterID, func(c *domain.Character) {
		c.Location = ""
	})
}

func handleWorldTimeAdvance(ctx context.Context, w World, _ int, p event.Payload, _ Options) error {
	a, err := payloadAs[event.WorldTimeAdvance](p)
	if err != nil {
		return err
	}
	return updateWorld(ctx, w, func(ws *domain.WorldState) {
		ws.WorldTimeMinutes = AdvanceTime(ws.WorldTimeMinutes, a.Mode, a.Minutes)
	})
}

func handleWorldEvent(ctx context.Context, w World, turn int, p event.Payload, opts Options) error {
	e, err := payloadAs[event.WorldEvent](p)
	if err != nil {
		return err
	}
	return updateWorld(ctx, w, func(ws *domain.WorldState) {
		entry := domain.WorldEventEntry{Turn: turn, Summary: e.Summary, Source: e.Source}
		ws.RecentWorldEvents = PushWorldEvent(ws.RecentWorldEvents, entry, opts.worldEventCap())
	})
}
