package projection

import (
	"context"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/store"
)

// txWorld adapts one campaign inside a store transaction to rules.World.
type txWorld struct {
	tx         *store.Tx
	campaignID string
}

func (w txWorld) Character(ctx context.Context, id string) (domain.Character, bool, error) {
	return w.tx.Character(ctx, w.campaignID, id)
}

func (w txWorld) InsertCharacter(ctx context.Context, c domain.Character) (bool, error) {
	return w.tx.InsertCharacter(ctx, w.campaignID, c)
}

func (w txWorld) UpdateCharacter(ctx context.Context, c domain.Character) error {
	return w.tx.UpdateCharacter(ctx, w.campaignID, c)
}

func (w txWorld) Quantity(ctx context.Context, owner, item string) (int, error) {
	return w.tx.Quantity(ctx, w.campaignID, owner, item)
}

func (w txWorld) SetQuantity(ctx context.Context, owner, item string, qty int) error {
	return w.tx.SetQuantity(ctx, w.campaignID, owner, item, qty)
}

func (w txWorld) WorldState(ctx context.Context) (domain.WorldState, error) {
	return w.tx.WorldState(ctx, w.campaignID)
}

func (w txWorld) PutWorldState(ctx context.Context, ws domain.WorldState) error {
	return w.tx.PutWorldState(ctx, w.campaignID, ws)
}
