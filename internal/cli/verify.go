package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/projection"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <campaign-id>",
		Short: "Replay the event log and compare it with the projections",
		Long: `Fold the campaign's full event log, hidden events included, and
compare the result with the stored projections field by field.

Nothing is rewritten: the projections stay the source of truth and any
divergence is reported.

Exit codes:
  0 - Projections match the replayed log
  1 - Divergence detected
  2 - Command error (campaign or database not found, etc.)

Examples:
  saga verify 0190f3c2-...
  saga verify 0190f3c2-... --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, campaignID string, cmd *cobra.Command) error {
	s, err := openSession(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.coordinator.Projector().Verify(commandContext(cmd), s.store, campaignID)
	if err != nil {
		return campaignError(campaignID, err)
	}

	f := opts.formatter(cmd)
	if !report.OK() {
		opts.Logger.Warn("projection diverged from log", "campaign_id", campaignID, "divergences", len(report.Divergences))
		if f.Format == "text" {
			writeReport(f, report)
		}
		return f.Fail(ExitFailure, CodeDivergence, fmt.Sprintf("%d field(s) diverge from the replayed log", len(report.Divergences)), report)
	}
	return emit(cmd, opts, report, func(f *OutputFormatter) { writeReport(f, report) })
}

func writeReport(f *OutputFormatter, r projection.Report) {
	status := "✓"
	if !r.OK() {
		status = "✗"
	}
	fmt.Fprintf(f.Writer, "%s Campaign %s: %d events through turn %d\n", status, r.CampaignID, r.EventCount, r.TurnNumber)
	if r.Unhandled > 0 {
		fmt.Fprintf(f.Writer, "  %d event(s) of unknown type skipped\n", r.Unhandled)
	}
	for _, d := range r.Divergences {
		fmt.Fprintf(f.Writer, "  %s: projected %v, replayed %v\n", d.Path, d.Projected, d.Replayed)
	}
}
