package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/saga/internal/event"
)

// AppendEvents inserts events for one turn in slice order. Insertion order
// becomes the id order that GetEvents and projection replay rely on.
func (t *Tx) AppendEvents(ctx context.Context, campaignID string, turn int, events []event.Event, now time.Time) ([]event.Record, error) {
	return appendEvents(ctx, t.tx, campaignID, turn, events, now)
}

// AppendEvents appends events in their own transaction. Use Tx.AppendEvents
// to make the append part of a larger unit of work.
func (s *Store) AppendEvents(ctx context.Context, campaignID string, turn int, events []event.Event, now time.Time) ([]event.Record, error) {
	var records []event.Record
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		records, err = tx.AppendEvents(ctx, campaignID, turn, events, now)
		return err
	})
	return records, err
}

func appendEvents(ctx context.Context, q querier, campaignID string, turn int, events []event.Event, now time.Time) ([]event.Record, error) {
	records := make([]event.Record, 0, len(events))
	created := formatTime(now)
	for i, ev := range events {
		if ev.Payload == nil {
			return nil, fmt.Errorf("append events: event %d has no payload", i)
		}
		payload, err := event.Encode(ev.Payload)
		if err != nil {
			return nil, fmt.Errorf("append events: %w", err)
		}
		res, err := q.ExecContext(ctx, `
			INSERT INTO events
			(campaign_id, turn_number, event_type, payload, is_hidden, is_public_rumor, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			campaignID,
			turn,
			string(ev.Kind()),
			string(payload),
			boolToInt(ev.Hidden),
			boolToInt(ev.PublicRumor),
			created,
		)
		if err != nil {
			return nil, fmt.Errorf("append events: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("append events: last insert id: %w", err)
		}
		records = append(records, event.Record{
			ID:         id,
			CampaignID: campaignID,
			TurnNumber: turn,
			Event:      ev,
			CreatedAt:  now.UTC(),
		})
	}
	return records, nil
}

// GetEvents returns events with turn_number > sinceTurn ordered by
// (turn_number, id). With includeHidden=false, rows flagged hidden are
// excluded; this is the player-facing history.
//
// Returns an empty slice (not nil) if no events match.
func (s *Store) GetEvents(ctx context.Context, campaignID string, sinceTurn int, includeHidden bool) ([]event.Record, error) {
	return getEvents(ctx, s.db, campaignID, sinceTurn, includeHidden)
}

// GetEvents reads events inside the transaction.
func (t *Tx) GetEvents(ctx context.Context, campaignID string, sinceTurn int, includeHidden bool) ([]event.Record, error) {
	return getEvents(ctx, t.tx, campaignID, sinceTurn, includeHidden)
}

func getEvents(ctx context.Context, q querier, campaignID string, sinceTurn int, includeHidden bool) ([]event.Record, error) {
	query := `
		SELECT id, campaign_id, turn_number, event_type, payload, is_hidden, is_public_rumor, created_at
		FROM events
		WHERE campaign_id = ? AND turn_number > ?`
	if !includeHidden {
		query += ` AND is_hidden = 0`
	}
	query += `
		ORDER BY turn_number ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, campaignID, sinceTurn)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []event.Record{}
	for rows.Next() {
		var (
			r             event.Record
			kind, payload string
			hidden, rumor int
			created       string
		)
		if err := rows.Scan(&r.ID, &r.CampaignID, &r.TurnNumber, &kind, &payload, &hidden, &rumor, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		p, err := event.Decode(event.Kind(kind), []byte(payload))
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", r.ID, err)
		}
		r.Event = event.Event{Payload: p, Hidden: hidden != 0, PublicRumor: rumor != 0}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// GetCurrentTurnNumber returns MAX(turn_number) of the log, or 0 for a
// campaign with no committed turns.
func (s *Store) GetCurrentTurnNumber(ctx context.Context, campaignID string) (int, error) {
	var turn int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(turn_number), 0) FROM events WHERE campaign_id = ?
	`, campaignID).Scan(&turn)
	if err != nil {
		return 0, fmt.Errorf("current turn number: %w", err)
	}
	return turn, nil
}

// CountEvents returns the number of stored events for a campaign.
func (s *Store) CountEvents(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE campaign_id = ?`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
