package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/saga/internal/domain"
)

// Quantity returns the holding for (owner, item), 0 when absent.
func (t *Tx) Quantity(ctx context.Context, campaignID, owner, item string) (int, error) {
	var qty int
	err := t.tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory
		WHERE campaign_id = ? AND owner_id = ? AND item_name = ?
	`, campaignID, owner, item).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read inventory: %w", err)
	}
	return qty, nil
}

// SetQuantity upserts a holding. A quantity at or below zero deletes the
// row, so the table never holds an empty or negative entry.
func (t *Tx) SetQuantity(ctx context.Context, campaignID, owner, item string, qty int) error {
	if qty <= 0 {
		_, err := t.tx.ExecContext(ctx, `
			DELETE FROM inventory
			WHERE campaign_id = ? AND owner_id = ? AND item_name = ?
		`, campaignID, owner, item)
		if err != nil {
			return fmt.Errorf("delete inventory: %w", err)
		}
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO inventory (campaign_id, owner_id, item_name, quantity)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(campaign_id, owner_id, item_name) DO UPDATE SET quantity = excluded.quantity
	`, campaignID, owner, item, qty)
	if err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

// ListInventory returns all holdings ordered by owner, then item.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListInventory(ctx context.Context, campaignID string) ([]domain.InventoryEntry, error) {
	return listInventory(ctx, s.db, campaignID)
}

func listInventory(ctx context.Context, q querier, campaignID string) ([]domain.InventoryEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT owner_id, item_name, quantity
		FROM inventory
		WHERE campaign_id = ?
		ORDER BY owner_id COLLATE BINARY ASC, item_name COLLATE BINARY ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	entries := []domain.InventoryEntry{}
	for rows.Next() {
		var e domain.InventoryEntry
		if err := rows.Scan(&e.Owner, &e.Item, &e.Quantity); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}
	return entries, nil
}
