package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Recap is the rolling summary of recent turns kept per campaign.
type Recap struct {
	CampaignID  string    `json:"campaign_id"`
	ThroughTurn int       `json:"through_turn"`
	Text        string    `json:"recap"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PutRecap replaces the campaign's recap.
func (s *Store) PutRecap(ctx context.Context, r Recap) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_recaps (campaign_id, through_turn, recap, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(campaign_id) DO UPDATE SET
			through_turn = excluded.through_turn,
			recap = excluded.recap,
			updated_at = excluded.updated_at
	`, r.CampaignID, r.ThroughTurn, r.Text, formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put recap: %w", err)
	}
	return nil
}

// GetRecap returns the campaign's recap; ok=false when none was written.
func (s *Store) GetRecap(ctx context.Context, campaignID string) (Recap, bool, error) {
	var (
		r       Recap
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT campaign_id, through_turn, recap, updated_at
		FROM turn_recaps
		WHERE campaign_id = ?
	`, campaignID).Scan(&r.CampaignID, &r.ThroughTurn, &r.Text, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Recap{}, false, nil
	}
	if err != nil {
		return Recap{}, false, fmt.Errorf("get recap: %w", err)
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return Recap{}, false, err
	}
	return r, true, nil
}
