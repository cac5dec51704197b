package store

import (
	"context"
	"fmt"

	"github.com/roach88/saga/internal/domain"
)

// LoadSnapshot reads the committed projection state of a campaign.
// All reads run in one read transaction so the snapshot is consistent
// without holding the write lock.
func (s *Store) LoadSnapshot(ctx context.Context, campaignID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.WithReadTx(ctx, func(tx *Tx) error {
		var err error
		snap, err = tx.LoadSnapshot(ctx, campaignID)
		return err
	})
	return snap, err
}

// LoadSnapshot reads projection state inside the transaction.
func (t *Tx) LoadSnapshot(ctx context.Context, campaignID string) (domain.Snapshot, error) {
	c, err := t.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	chars, err := listCharacters(ctx, t.tx, campaignID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	inv, err := listInventory(ctx, t.tx, campaignID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	snap := domain.Snapshot{
		Campaign:   c,
		Characters: make(map[string]domain.Character, len(chars)),
		Inventory:  make(map[domain.InventoryKey]int, len(inv)),
	}
	for _, ch := range chars {
		snap.Characters[ch.ID] = ch
	}
	for _, e := range inv {
		snap.Inventory[domain.InventoryKey{Owner: e.Owner, Item: e.Item}] = e.Quantity
	}
	return snap, nil
}
