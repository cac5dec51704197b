package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/saga/internal/domain"
)

const characterColumns = `id, name, kind, location, region, hp_current, hp_max, stats, stress, mood, relationship, credits, spawned_turn`

// Character reads one character row inside the transaction.
func (t *Tx) Character(ctx context.Context, campaignID, id string) (domain.Character, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+characterColumns+`
		FROM characters
		WHERE campaign_id = ? AND id = ?
	`, campaignID, id)
	c, err := scanCharacter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Character{}, false, nil
	}
	if err != nil {
		return domain.Character{}, false, fmt.Errorf("read character %s: %w", id, err)
	}
	return c, true, nil
}

// InsertCharacter creates a character row.
// Uses ON CONFLICT DO NOTHING for idempotency - a repeated spawn of the same
// id is silently ignored and reported as inserted=false.
func (t *Tx) InsertCharacter(ctx context.Context, campaignID string, c domain.Character) (bool, error) {
	stats, err := marshalStats(c.Stats)
	if err != nil {
		return false, fmt.Errorf("insert character: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO characters
		(campaign_id, id, name, kind, location, region, hp_current, hp_max, stats, stress, mood, relationship, credits, spawned_turn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id, id) DO NOTHING
	`,
		campaignID,
		c.ID,
		c.Name,
		string(c.Kind),
		c.Location,
		c.Region,
		c.HPCurrent,
		c.HPMax,
		stats,
		c.Stress,
		string(c.Mood),
		nullableInt(c.Relationship),
		c.Credits,
		c.SpawnedTurn,
	)
	if err != nil {
		return false, fmt.Errorf("insert character: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert character: rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateCharacter overwrites the mutable fields of an existing character.
func (t *Tx) UpdateCharacter(ctx context.Context, campaignID string, c domain.Character) error {
	stats, err := marshalStats(c.Stats)
	if err != nil {
		return fmt.Errorf("update character: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE characters
		SET name = ?, kind = ?, location = ?, region = ?, hp_current = ?, hp_max = ?,
		    stats = ?, stress = ?, mood = ?, relationship = ?, credits = ?
		WHERE campaign_id = ? AND id = ?
	`,
		c.Name,
		string(c.Kind),
		c.Location,
		c.Region,
		c.HPCurrent,
		c.HPMax,
		stats,
		c.Stress,
		string(c.Mood),
		nullableInt(c.Relationship),
		c.Credits,
		campaignID,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update character %s: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update character: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update character %s: no such character", c.ID)
	}
	return nil
}

// ListCharacters returns a campaign's characters ordered by id.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ListCharacters(ctx context.Context, campaignID string) ([]domain.Character, error) {
	return listCharacters(ctx, s.db, campaignID)
}

func listCharacters(ctx context.Context, q querier, campaignID string) ([]domain.Character, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+characterColumns+`
		FROM characters
		WHERE campaign_id = ?
		ORDER BY id COLLATE BINARY ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer rows.Close()

	chars := []domain.Character{}
	for rows.Next() {
		c, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		chars = append(chars, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate characters: %w", err)
	}
	return chars, nil
}

func scanCharacter(row scanner) (domain.Character, error) {
	var (
		c            domain.Character
		kind, mood   string
		stats        string
		relationship sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.Name, &kind, &c.Location, &c.Region, &c.HPCurrent, &c.HPMax,
		&stats, &c.Stress, &mood, &relationship, &c.Credits, &c.SpawnedTurn,
	)
	if err != nil {
		return domain.Character{}, err
	}
	c.Kind = domain.CharacterKind(kind)
	c.Mood = domain.Mood(mood)
	if err := json.Unmarshal([]byte(stats), &c.Stats); err != nil {
		return domain.Character{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	if c.Stats == nil {
		c.Stats = map[string]int{}
	}
	if relationship.Valid {
		v := int(relationship.Int64)
		c.Relationship = &v
	}
	return c, nil
}

func marshalStats(stats map[string]int) (string, error) {
	if stats == nil {
		return "{}", nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	return string(data), nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
