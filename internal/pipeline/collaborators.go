package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// Output is what a resolving collaborator contributes to the batch.
type Output struct {
	Events          []event.Event
	TimeCostMinutes int
}

// Narration is the narrator's contribution: rendered text plus any events
// the narrative itself implies.
type Narration struct {
	Text      string
	Citations []domain.Citation
	Choices   []domain.Choice
	Events    []event.Event
}

// Mechanic resolves actions that require rules adjudication.
type Mechanic interface {
	Resolve(ctx context.Context, st TurnState) (Output, error)
}

// Encounter evaluates the scene the player is in.
type Encounter interface {
	Evaluate(ctx context.Context, st TurnState) (Output, error)
}

// WorldReactor produces off-screen consequences of the turn.
type WorldReactor interface {
	React(ctx context.Context, st TurnState) (Output, error)
}

// Narrator renders the turn for the player.
type Narrator interface {
	Narrate(ctx context.Context, st TurnState) (Narration, error)
}

// MetaHandler answers out-of-fiction commands. It must not write.
type MetaHandler interface {
	Handle(ctx context.Context, st TurnState) (string, error)
}

// NoopMechanic resolves nothing.
type NoopMechanic struct{}

func (NoopMechanic) Resolve(context.Context, TurnState) (Output, error) { return Output{}, nil }

// NoopEncounter evaluates nothing.
type NoopEncounter struct{}

func (NoopEncounter) Evaluate(context.Context, TurnState) (Output, error) { return Output{}, nil }

// NoopWorldReactor leaves the world alone.
type NoopWorldReactor struct{}

func (NoopWorldReactor) React(context.Context, TurnState) (Output, error) { return Output{}, nil }

// EchoNarrator narrates by repeating the player's input.
type EchoNarrator struct{}

func (EchoNarrator) Narrate(_ context.Context, st TurnState) (Narration, error) {
	return Narration{Text: "> " + strings.TrimSpace(st.Input)}, nil
}

// DefaultMeta answers help, status, inventory and recap from the pre-turn
// snapshot and the stored recap.
type DefaultMeta struct{}

func (DefaultMeta) Handle(_ context.Context, st TurnState) (string, error) {
	cmd := strings.TrimPrefix(strings.TrimSpace(NewRouter().Normalize(st.Input)), "/")
	if fields := strings.Fields(cmd); len(fields) > 0 {
		cmd = fields[0]
	}
	switch cmd {
	case "", "help":
		return "Commands: /help, /status, /inventory, /recap. Anything else is an action.", nil
	case "recap", "history":
		if st.Recap == "" {
			return "Nothing has happened yet.", nil
		}
		return st.Recap, nil
	case "status":
		pc, ok := st.Snapshot.Player()
		if !ok {
			return fmt.Sprintf("Turn %d. No player character.", st.Snapshot.Campaign.TurnNumber), nil
		}
		return fmt.Sprintf("Turn %d. %s at %s, HP %d/%d, mood %s.",
			st.Snapshot.Campaign.TurnNumber, pc.Name, pc.Location, pc.HPCurrent, pc.HPMax, pc.Mood), nil
	case "inventory":
		pc, ok := st.Snapshot.Player()
		if !ok {
			return "Nothing carried.", nil
		}
		var parts []string
		for _, e := range st.Snapshot.InventoryEntries() {
			if e.Owner == pc.ID {
				parts = append(parts, fmt.Sprintf("%s x%d", e.Item, e.Quantity))
			}
		}
		if len(parts) == 0 {
			return "Nothing carried.", nil
		}
		return strings.Join(parts, ", "), nil
	default:
		return fmt.Sprintf("Unknown command %q.", cmd), nil
	}
}
