package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
)

// errLostRace marks one failed compare-and-swap; it never leaves this file.
var errLostRace = errors.New("lost turn reservation race")

// ReserveNextTurnNumber allocates the next turn number for a campaign using
// autocommit statements, so concurrent callers genuinely race on the
// compare-and-swap. Concurrent callers on a fresh campaign receive exactly
// 1..N.
func (s *Store) ReserveNextTurnNumber(ctx context.Context, campaignID string) (int, error) {
	return reserve(ctx, s.db, s.opts, campaignID)
}

// ReserveNextTurnNumber allocates the next turn number inside the
// transaction. A rollback releases the number again.
func (t *Tx) ReserveNextTurnNumber(ctx context.Context, campaignID string) (int, error) {
	return reserve(ctx, t.tx, t.store.opts, campaignID)
}

func reserve(ctx context.Context, q querier, opts Options, campaignID string) (int, error) {
	attempts := 0
	op := func() (int, error) {
		attempts++
		turn, err := tryReserve(ctx, q, campaignID)
		if errors.Is(err, errLostRace) {
			return 0, err
		}
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		return turn, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.ReserveRetryBackoff
	b.MaxInterval = 50 * opts.ReserveRetryBackoff

	turn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(opts.ReserveRetryBudget)),
	)
	if errors.Is(err, errLostRace) {
		slog.Warn("turn reservation exhausted retry budget",
			"campaign_id", campaignID,
			"attempts", attempts,
		)
		return 0, &ContentionError{CampaignID: campaignID, Attempts: attempts}
	}
	if err != nil {
		return 0, err
	}
	if attempts > 1 {
		slog.Debug("turn reservation retried",
			"campaign_id", campaignID,
			"attempts", attempts,
			"turn", turn,
		)
	}
	return turn, nil
}

// tryReserve makes one read-compute-swap attempt.
func tryReserve(ctx context.Context, q querier, campaignID string) (int, error) {
	var (
		version int64
		hint    int
		maxTurn int
	)
	err := q.QueryRowContext(ctx, `
		SELECT c.version, c.next_turn_number,
		       COALESCE((SELECT MAX(e.turn_number) FROM events e WHERE e.campaign_id = c.id), 0)
		FROM campaigns c
		WHERE c.id = ?
	`, campaignID).Scan(&version, &hint, &maxTurn)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reserve turn: %w", ErrCampaignNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("reserve turn: read campaign: %w", err)
	}

	allocated := max(hint, maxTurn+1)

	res, err := q.ExecContext(ctx, `
		UPDATE campaigns
		SET next_turn_number = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, allocated+1, campaignID, version)
	if err != nil {
		return 0, fmt.Errorf("reserve turn: update campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reserve turn: rows affected: %w", err)
	}
	if n == 0 {
		return 0, errLostRace
	}
	return allocated, nil
}
