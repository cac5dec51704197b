package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/domain"
)

// StateResult is a campaign's current projected state.
type StateResult struct {
	Campaign   domain.Campaign         `json:"campaign"`
	Characters []domain.Character      `json:"characters"`
	Inventory  []domain.InventoryEntry `json:"inventory"`
	Recap      string                  `json:"recap,omitempty"`
}

// CampaignSummary is one row of the campaign list.
type CampaignSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	TurnNumber int    `json:"turn_number"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state [campaign-id]",
		Short: "Show current campaign state",
		Long: `Show a campaign's characters, inventory and world state as the
projections hold them. Without a campaign id, list all campaigns.

Examples:
  saga state
  saga state 0190f3c2-... --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListCampaigns(rootOpts, cmd)
			}
			return runState(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runListCampaigns(opts *RootOptions, cmd *cobra.Command) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	campaigns, err := s.store.ListCampaigns(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list campaigns", err)
	}
	list := make([]CampaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		list = append(list, CampaignSummary{ID: c.ID, Title: c.Title, TurnNumber: c.TurnNumber})
	}
	return emit(cmd, opts, list, func(f *OutputFormatter) {
		if len(list) == 0 {
			fmt.Fprintln(f.Writer, "No campaigns.")
			return
		}
		for _, c := range list {
			fmt.Fprintf(f.Writer, "%s  turn %-4d %s\n", c.ID, c.TurnNumber, c.Title)
		}
	})
}

func runState(opts *RootOptions, campaignID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	snap, err := s.store.LoadSnapshot(ctx, campaignID)
	if err != nil {
		return campaignError(campaignID, err)
	}
	result := StateResult{
		Campaign:   snap.Campaign,
		Characters: make([]domain.Character, 0, len(snap.Characters)),
		Inventory:  snap.InventoryEntries(),
	}
	for _, c := range snap.Characters {
		result.Characters = append(result.Characters, c)
	}
	sort.Slice(result.Characters, func(i, j int) bool { return result.Characters[i].ID < result.Characters[j].ID })

	recap, ok, err := s.store.GetRecap(ctx, campaignID)
	if err != nil {
		return campaignError(campaignID, err)
	}
	if ok {
		result.Recap = recap.Text
	}

	return emit(cmd, opts, result, func(f *OutputFormatter) { writeState(f, result) })
}

func writeState(f *OutputFormatter, r StateResult) {
	w := f.Writer
	ws := r.Campaign.WorldState
	fmt.Fprintf(w, "%s (turn %d)\n", r.Campaign.Title, r.Campaign.TurnNumber)
	fmt.Fprintf(w, "World time: day %d, %02d:%02d\n", ws.WorldTimeMinutes/1440+1, ws.WorldTimeMinutes%1440/60, ws.WorldTimeMinutes%60)

	fmt.Fprintln(w, "\nCharacters:")
	for _, c := range r.Characters {
		where := c.Location
		if c.Retired() {
			where = "departed"
		}
		fmt.Fprintf(w, "  %-12s %-8s %-6s HP %d/%d  %s\n", c.ID, c.Name, c.Kind, c.HPCurrent, c.HPMax, where)
	}

	if len(r.Inventory) > 0 {
		fmt.Fprintln(w, "\nInventory:")
		for _, e := range r.Inventory {
			fmt.Fprintf(w, "  %-12s %s x%d\n", e.Owner, e.Item, e.Quantity)
		}
	}

	if len(ws.Flags) > 0 {
		keys := make([]string, 0, len(ws.Flags))
		for k := range ws.Flags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, ws.Flags[k]))
		}
		fmt.Fprintf(w, "\nFlags: %s\n", strings.Join(parts, " "))
	}

	if f.Verbose && r.Recap != "" {
		fmt.Fprintf(w, "\nRecap:\n%s", r.Recap)
	}
}
