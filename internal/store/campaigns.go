package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

const campaignColumns = `id, title, turn_number, world_state, version, next_turn_number, created_at, updated_at`

// InsertCampaign creates the aggregate row for a new campaign at turn 0.
func (t *Tx) InsertCampaign(ctx context.Context, id, title string, ws domain.WorldState, now time.Time) error {
	wsJSON, err := marshalWorldState(ws)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, title, turn_number, world_state, version, next_turn_number, created_at, updated_at)
		VALUES (?, ?, 0, ?, 0, 1, ?, ?)
	`, id, title, wsJSON, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetCampaign returns the campaign row, or ErrCampaignNotFound.
func (s *Store) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return getCampaign(ctx, s.db, id)
}

// GetCampaign reads the campaign inside the transaction.
func (t *Tx) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return getCampaign(ctx, t.tx, id)
}

func getCampaign(ctx context.Context, q querier, id string) (domain.Campaign, error) {
	row := q.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, fmt.Errorf("get campaign %s: %w", id, ErrCampaignNotFound)
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("get campaign %s: %w", id, err)
	}
	return c, nil
}

// ListCampaigns returns every campaign ordered by creation time, then id.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// SetCampaignTurn records the committed turn number on the aggregate.
func (t *Tx) SetCampaignTurn(ctx context.Context, id string, turn int, now time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE campaigns SET turn_number = ?, updated_at = ? WHERE id = ?
	`, turn, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("set campaign turn: %w", err)
	}
	return requireOneRow(res, id)
}

// WorldState reads the campaign's world-state document.
func (t *Tx) WorldState(ctx context.Context, id string) (domain.WorldState, error) {
	var raw string
	err := t.tx.QueryRowContext(ctx, `SELECT world_state FROM campaigns WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WorldState{}, fmt.Errorf("read world state %s: %w", id, ErrCampaignNotFound)
	}
	if err != nil {
		return domain.WorldState{}, fmt.Errorf("read world state: %w", err)
	}
	return unmarshalWorldState(raw)
}

// PutWorldState replaces the campaign's world-state document.
func (t *Tx) PutWorldState(ctx context.Context, id string, ws domain.WorldState) error {
	wsJSON, err := marshalWorldState(ws)
	if err != nil {
		return fmt.Errorf("write world state: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE campaigns SET world_state = ? WHERE id = ?`, wsJSON, id)
	if err != nil {
		return fmt.Errorf("write world state: %w", err)
	}
	return requireOneRow(res, id)
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("campaign %s: %w", id, ErrCampaignNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row scanner) (domain.Campaign, error) {
	var (
		c                domain.Campaign
		wsJSON           string
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Title, &c.TurnNumber, &wsJSON, &c.Version, &c.NextTurnNumber, &created, &updated); err != nil {
		return domain.Campaign{}, err
	}
	ws, err := unmarshalWorldState(wsJSON)
	if err != nil {
		return domain.Campaign{}, err
	}
	c.WorldState = ws
	if c.CreatedAt, err = parseTime(created); err != nil {
		return domain.Campaign{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

func marshalWorldState(ws domain.WorldState) (string, error) {
	if ws.Flags == nil {
		ws.Flags = map[string]any{}
	}
	if ws.RecentWorldEvents == nil {
		ws.RecentWorldEvents = []domain.WorldEventEntry{}
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return "", fmt.Errorf("marshal world state: %w", err)
	}
	return string(data), nil
}

// unmarshalWorldState decodes numbers the way event payloads are decoded so
// flag values compare equal to what the reducer holds.
func unmarshalWorldState(raw string) (domain.WorldState, error) {
	ws := domain.NewWorldState()
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&ws); err != nil {
		return domain.WorldState{}, fmt.Errorf("unmarshal world state: %w", err)
	}
	for k, v := range ws.Flags {
		ws.Flags[k] = event.NormalizeValue(v)
	}
	for k, v := range ws.Extra {
		ws.Extra[k] = event.NormalizeValue(v)
	}
	if ws.Flags == nil {
		ws.Flags = map[string]any{}
	}
	if ws.RecentWorldEvents == nil {
		ws.RecentWorldEvents = []domain.WorldEventEntry{}
	}
	return ws, nil
}
