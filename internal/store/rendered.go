package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/saga/internal/domain"
)

// InsertRenderedTurn persists a turn's narrative output. Rows are
// write-once: a second insert for the same turn returns
// ErrRenderedTurnExists and updates are rejected by trigger.
func (t *Tx) InsertRenderedTurn(ctx context.Context, rt domain.RenderedTurn) error {
	citations := rt.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	choices := rt.Choices
	if choices == nil {
		choices = []domain.Choice{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("insert rendered turn: marshal citations: %w", err)
	}
	choicesJSON, err := json.Marshal(choices)
	if err != nil {
		return fmt.Errorf("insert rendered turn: marshal choices: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO rendered_turns
		(campaign_id, turn_number, text, citations, choices, batch_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rt.CampaignID,
		rt.TurnNumber,
		rt.Text,
		string(citationsJSON),
		string(choicesJSON),
		rt.BatchHash,
		formatTime(rt.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert rendered turn %d: %w", rt.TurnNumber, ErrRenderedTurnExists)
	}
	if err != nil {
		return fmt.Errorf("insert rendered turn: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

const renderedColumns = `campaign_id, turn_number, text, citations, choices, batch_hash, created_at`

// GetRenderedTurn returns the output of one turn; ok=false when the turn
// has none.
func (s *Store) GetRenderedTurn(ctx context.Context, campaignID string, turn int) (domain.RenderedTurn, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+renderedColumns+`
		FROM rendered_turns
		WHERE campaign_id = ? AND turn_number = ?
	`, campaignID, turn)
	rt, err := scanRenderedTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RenderedTurn{}, false, nil
	}
	if err != nil {
		return domain.RenderedTurn{}, false, fmt.Errorf("get rendered turn: %w", err)
	}
	return rt, true, nil
}

// ListRenderedTurns returns rendered turns with turn_number > sinceTurn in
// turn order. A positive limit keeps only the most recent limit rows.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListRenderedTurns(ctx context.Context, campaignID string, sinceTurn, limit int) ([]domain.RenderedTurn, error) {
	return listRenderedTurns(ctx, s.db, campaignID, sinceTurn, limit)
}

// ListRenderedTurns reads rendered turns inside the transaction.
func (t *Tx) ListRenderedTurns(ctx context.Context, campaignID string, sinceTurn, limit int) ([]domain.RenderedTurn, error) {
	return listRenderedTurns(ctx, t.tx, campaignID, sinceTurn, limit)
}

func listRenderedTurns(ctx context.Context, q querier, campaignID string, sinceTurn, limit int) ([]domain.RenderedTurn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+renderedColumns+` FROM (
			SELECT `+renderedColumns+`
			FROM rendered_turns
			WHERE campaign_id = ? AND turn_number > ?
			ORDER BY turn_number DESC
			LIMIT ?
		)
		ORDER BY turn_number ASC
	`, campaignID, sinceTurn, limit)
	if err != nil {
		return nil, fmt.Errorf("query rendered turns: %w", err)
	}
	defer rows.Close()

	turns := []domain.RenderedTurn{}
	for rows.Next() {
		rt, err := scanRenderedTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rendered turn: %w", err)
		}
		turns = append(turns, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rendered turns: %w", err)
	}
	return turns, nil
}

// CountRenderedTurns returns how many turns have rendered output.
func (s *Store) CountRenderedTurns(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rendered_turns WHERE campaign_id = ?`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rendered turns: %w", err)
	}
	return n, nil
}

func scanRenderedTurn(row scanner) (domain.RenderedTurn, error) {
	var (
		rt                 domain.RenderedTurn
		citations, choices string
		created            string
	)
	if err := row.Scan(&rt.CampaignID, &rt.TurnNumber, &rt.Text, &citations, &choices, &rt.BatchHash, &created); err != nil {
		return domain.RenderedTurn{}, err
	}
	if err := json.Unmarshal([]byte(citations), &rt.Citations); err != nil {
		return domain.RenderedTurn{}, fmt.Errorf("unmarshal citations: %w", err)
	}
	if err := json.Unmarshal([]byte(choices), &rt.Choices); err != nil {
		return domain.RenderedTurn{}, fmt.Errorf("unmarshal choices: %w", err)
	}
	var err error
	if rt.CreatedAt, err = parseTime(created); err != nil {
		return domain.RenderedTurn{}, err
	}
	return rt, nil
}
