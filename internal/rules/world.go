package rules

import (
	"context"

	"github.com/roach88/saga/internal/domain"
)

// World is the mutable state a handler reads and writes. The reducer backs
// it with maps; the projector backs it with rows inside the commit
// transaction.
type World interface {
	// Character returns the character with id, or ok=false when absent.
	Character(ctx context.Context, id string) (c domain.Character, ok bool, err error)
	// InsertCharacter creates c unless a character with the same id exists.
	// An existing id is not an error.
	InsertCharacter(ctx context.Context, c domain.Character) (inserted bool, err error)
	// UpdateCharacter overwrites an existing character.
	UpdateCharacter(ctx context.Context, c domain.Character) error
	Quantity(ctx context.Context, owner, item string) (int, error)
	// SetQuantity stores a holding; qty <= 0 removes it.
	SetQuantity(ctx context.Context, owner, item string, qty int) error
	WorldState(ctx context.Context) (domain.WorldState, error)
	PutWorldState(ctx context.Context, ws domain.WorldState) error
}
