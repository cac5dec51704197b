package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Since    int
	Limit    int
	Hidden   bool
	Rendered bool
}

// HistoryResult lists a campaign's events or rendered turns.
type HistoryResult struct {
	CampaignID string                `json:"campaign_id"`
	Events     []event.Record        `json:"events,omitempty"`
	Rendered   []domain.RenderedTurn `json:"rendered,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <campaign-id>",
		Short: "Show a campaign's event log or narrative",
		Long: `Show the events committed after a turn, in commit order. By default
the whole log is shown, genesis included.

Hidden events are left out unless --hidden is given. With --rendered the
narrative text of each turn is shown instead of events.

Examples:
  saga history 0190f3c2-...
  saga history 0190f3c2-... --since 10 --hidden
  saga history 0190f3c2-... --rendered --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Since, "since", -1, "show turns after this turn number (-1 includes genesis)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rendered turns to show (0 = all)")
	cmd.Flags().BoolVar(&opts.Hidden, "hidden", false, "include hidden events")
	cmd.Flags().BoolVar(&opts.Rendered, "rendered", false, "show rendered narrative instead of events")

	return cmd
}

func runHistory(opts *HistoryOptions, campaignID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	if opts.Since < -1 {
		return NewExitError(ExitCommandError, "--since must be -1 or greater")
	}

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.store.GetCampaign(ctx, campaignID); err != nil {
		return campaignError(campaignID, err)
	}

	result := HistoryResult{CampaignID: campaignID}
	if opts.Rendered {
		result.Rendered, err = s.store.ListRenderedTurns(ctx, campaignID, opts.Since, opts.Limit)
		if err != nil {
			return campaignError(campaignID, err)
		}
		return emit(cmd, opts.RootOptions, result, func(f *OutputFormatter) {
			if len(result.Rendered) == 0 {
				fmt.Fprintln(f.Writer, "No turns played yet.")
				return
			}
			for _, rt := range result.Rendered {
				fmt.Fprintf(f.Writer, "[turn %d]\n%s\n\n", rt.TurnNumber, rt.Text)
			}
		})
	}

	result.Events, err = s.store.GetEvents(ctx, campaignID, opts.Since, opts.Hidden)
	if err != nil {
		return campaignError(campaignID, err)
	}
	return emit(cmd, opts.RootOptions, result, func(f *OutputFormatter) {
		if len(result.Events) == 0 {
			fmt.Fprintln(f.Writer, "No events.")
			return
		}
		for _, r := range result.Events {
			payload, err := event.Encode(r.Event.Payload)
			if err != nil {
				payload = []byte("?")
			}
			marker := ""
			if r.Event.Hidden {
				marker = " (hidden)"
			}
			fmt.Fprintf(f.Writer, "%4d  %-18s %s%s\n", r.TurnNumber, r.Kind(), payload, marker)
		}
	})
}
