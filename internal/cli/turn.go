package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/pipeline"
	"github.com/roach88/saga/internal/store"
)

// TurnOptions holds flags for the turn command.
type TurnOptions struct {
	*RootOptions
	Seed uint64
}

// TurnResult is the outcome of one player input.
type TurnResult struct {
	CampaignID  string            `json:"campaign_id"`
	Route       string            `json:"route"`
	ActionClass string            `json:"action_class"`
	Committed   bool              `json:"committed"`
	TurnNumber  int               `json:"turn_number"`
	Stages      []string          `json:"stages"`
	Text        string            `json:"text"`
	Choices     []domain.Choice   `json:"choices,omitempty"`
	Citations   []domain.Citation `json:"citations,omitempty"`
	BatchHash   string            `json:"batch_hash,omitempty"`
}

// NewTurnCommand creates the turn command.
func NewTurnCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TurnOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "turn <campaign-id> <input...>",
		Short: "Play one turn",
		Long: `Run one player input through the turn pipeline.

Meta commands such as /status, /inventory and /recap are answered
without consuming a turn. Everything else commits exactly one turn.

Exit codes:
  0 - Turn played
  1 - Turn failed (nothing was written)
  2 - Command error (campaign or database not found, etc.)

Examples:
  saga turn 0190f3c2-... walk to the dock
  saga turn 0190f3c2-... /status --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurn(opts, args[0], strings.Join(args[1:], " "), cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed for this turn (default: the turn number)")

	return cmd
}

func runTurn(opts *TurnOptions, campaignID, input string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	campaign, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return campaignError(campaignID, err)
	}
	seed := opts.Seed
	if !cmd.Flags().Changed("seed") {
		seed = uint64(campaign.TurnNumber + 1)
	}

	orch := pipeline.New(s.coordinator, pipeline.WithLogger(opts.Logger))
	res, err := orch.RunTurn(ctx, s.store, pipeline.TurnInput{
		CampaignID: campaignID,
		Input:      input,
		RNGSeed:    seed,
	})
	if err != nil {
		if stage := pipeline.FailedStage(err); stage != "" {
			details := map[string]string{"stage": string(stage)}
			if step := commit.FailedStep(err); step != "" {
				details["step"] = string(step)
			}
			if errors.Is(err, store.ErrTurnContention) {
				details["reason"] = "contention"
			}
			return f.Fail(ExitFailure, CodeTurn, err.Error(), details)
		}
		return campaignError(campaignID, err)
	}

	result := TurnResult{
		CampaignID:  campaignID,
		Route:       string(res.Route),
		ActionClass: res.Intent.ActionClass,
		Committed:   res.Committed,
		TurnNumber:  res.TurnNumber,
		Stages:      make([]string, 0, len(res.Trace)),
		Text:        res.MetaText,
		BatchHash:   res.BatchHash,
	}
	for _, stage := range res.Trace {
		result.Stages = append(result.Stages, string(stage))
	}
	if res.Committed {
		result.Text = res.Rendered.Text
		result.Choices = res.Rendered.Choices
		result.Citations = res.Rendered.Citations
	}

	return emit(cmd, opts.RootOptions, result, func(f *OutputFormatter) {
		f.VerboseLog("route=%s class=%s stages=%s", result.Route, result.ActionClass, strings.Join(result.Stages, ">"))
		if result.Committed {
			fmt.Fprintf(f.Writer, "[turn %d]\n", result.TurnNumber)
		}
		fmt.Fprintln(f.Writer, result.Text)
		for i, c := range result.Choices {
			fmt.Fprintf(f.Writer, "  %d. %s\n", i+1, c.Label)
		}
	})
}
