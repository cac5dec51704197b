package commit

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/store"
)

// DefaultRecapWindow is how many recent turns a recap covers.
const DefaultRecapWindow = 5

const recapLineRunes = 160

// RecapEnricher keeps a rolling plain-text recap of the most recent
// rendered turns in turn_recaps.
type RecapEnricher struct {
	Window int
	Clock  domain.Clock
}

// Name implements Enricher.
func (RecapEnricher) Name() string { return "recap" }

// Enrich implements Enricher.
func (r RecapEnricher) Enrich(ctx context.Context, st *store.Store, c Committed) error {
	window := r.Window
	if window <= 0 {
		window = DefaultRecapWindow
	}
	clock := r.Clock
	if clock == nil {
		clock = domain.SystemClock{}
	}

	turns, err := st.ListRenderedTurns(ctx, c.CampaignID, 0, window)
	if err != nil {
		return fmt.Errorf("recap: %w", err)
	}
	err = st.PutRecap(ctx, store.Recap{
		CampaignID:  c.CampaignID,
		ThroughTurn: c.TurnNumber,
		Text:        BuildRecap(turns),
		UpdatedAt:   clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("recap: %w", err)
	}
	return nil
}

// BuildRecap renders one line per turn, each truncated.
func BuildRecap(turns []domain.RenderedTurn) string {
	var b strings.Builder
	for _, t := range turns {
		text := strings.Join(strings.Fields(t.Text), " ")
		if r := []rune(text); len(r) > recapLineRunes {
			text = string(r[:recapLineRunes-1]) + "…"
		}
		fmt.Fprintf(&b, "Turn %d: %s\n", t.TurnNumber, text)
	}
	return b.String()
}

// EnricherFunc adapts a function to Enricher.
type EnricherFunc struct {
	N  string
	Fn func(ctx context.Context, st *store.Store, c Committed) error
}

// Name implements Enricher.
func (f EnricherFunc) Name() string { return f.N }

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, st *store.Store, c Committed) error {
	return f.Fn(ctx, st, c)
}
