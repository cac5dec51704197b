package reducer

import (
	"context"

	"github.com/roach88/saga/internal/domain"
)

// memWorld adapts a State to rules.World. It mutates the State it wraps, so
// callers hand it a clone.
type memWorld struct {
	s *State
}

func (w memWorld) Character(_ context.Context, id string) (domain.Character, bool, error) {
	c, ok := w.s.Characters[id]
	return c, ok, nil
}

func (w memWorld) InsertCharacter(_ context.Context, c domain.Character) (bool, error) {
	if _, ok := w.s.Characters[c.ID]; ok {
		return false, nil
	}
	w.s.Characters[c.ID] = c
	return true, nil
}

func (w memWorld) UpdateCharacter(_ context.Context, c domain.Character) error {
	w.s.Characters[c.ID] = c
	return nil
}

func (w memWorld) Quantity(_ context.Context, owner, item string) (int, error) {
	return w.s.Inventory[domain.InventoryKey{Owner: owner, Item: item}], nil
}

func (w memWorld) SetQuantity(_ context.Context, owner, item string, qty int) error {
	k := domain.InventoryKey{Owner: owner, Item: item}
	if qty <= 0 {
		delete(w.s.Inventory, k)
		return nil
	}
	w.s.Inventory[k] = qty
	return nil
}

func (w memWorld) WorldState(context.Context) (domain.WorldState, error) {
	return w.s.WorldState(), nil
}

func (w memWorld) PutWorldState(_ context.Context, ws domain.WorldState) error {
	w.s.Campaign.WorldFlags = ws.Flags
	w.s.Campaign.WorldTime = ws.WorldTimeMinutes
	w.s.Campaign.RecentWorldEvents = ws.RecentWorldEvents
	return nil
}
