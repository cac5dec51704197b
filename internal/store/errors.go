package store

import (
	"errors"
	"fmt"
)

var (
	// ErrCampaignNotFound is returned when a campaign id has no row.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrRenderedTurnExists is returned when a turn already has output.
	ErrRenderedTurnExists = errors.New("rendered turn already exists")
	// ErrTurnContention is returned when turn reservation exhausts its
	// retry budget. It signals pathological contention, not a routine race.
	ErrTurnContention = errors.New("turn number contention")
	// ErrTxDone is returned when a finished transaction is used.
	ErrTxDone = errors.New("transaction already finished")
)

// ContentionError reports a reservation that lost every compare-and-swap.
type ContentionError struct {
	CampaignID string
	Attempts   int
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("reserve turn for campaign %s: lost %d attempts: %v", e.CampaignID, e.Attempts, ErrTurnContention)
}

// Unwrap lets errors.Is match ErrTurnContention.
func (e *ContentionError) Unwrap() error {
	return ErrTurnContention
}

// IsContention reports whether err is a reservation contention failure.
func IsContention(err error) bool {
	return errors.Is(err, ErrTurnContention)
}

// IsNotFound reports whether err means the campaign does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}
