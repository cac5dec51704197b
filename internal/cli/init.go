package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/seed"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Title string
}

// InitResult is the outcome of creating a campaign.
type InitResult struct {
	CampaignID string `json:"campaign_id"`
	Title      string `json:"title"`
	Genesis    int    `json:"genesis_events"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <seed-file>",
		Short: "Create a campaign from a seed file",
		Long: `Create a campaign from a CUE, JSON or YAML seed file.

The seed's characters, items, flags and opening are written as the
campaign's turn-0 events.

Exit codes:
  0 - Campaign created
  1 - Seed file is invalid
  2 - Command error (seed file or database not found, etc.)

Examples:
  saga init ./harbor.cue
  saga init ./harbor.yaml --title "Night Shift" --db ./campaigns.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Title, "title", "", "campaign title (default: the seed's title)")

	return cmd
}

func runInit(opts *InitOptions, path string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	sd, err := seed.Load(path)
	if err != nil {
		var le *seed.LoadError
		if errors.As(err, &le) && le.Code == seed.ErrCodeNotFound {
			return WrapExitError(ExitCommandError, "seed file not found", err)
		}
		return f.Fail(ExitFailure, CodeSeed, err.Error(), nil)
	}

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	title := sd.Title
	if opts.Title != "" {
		title = opts.Title
	}
	genesis := sd.Genesis()
	f.VerboseLog("Creating campaign %q with %d genesis events", title, len(genesis))

	campaign, err := s.coordinator.CreateCampaign(ctx, s.store, title, genesis)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create campaign", err)
	}
	opts.Logger.Info("campaign created", "campaign_id", campaign.ID, "genesis_events", len(genesis))

	result := InitResult{CampaignID: campaign.ID, Title: campaign.Title, Genesis: len(genesis)}
	return emit(cmd, opts.RootOptions, result, func(f *OutputFormatter) {
		fmt.Fprintf(f.Writer, "Created campaign %s (%s)\n", result.CampaignID, result.Title)
		if sd.Opening != "" {
			fmt.Fprintln(f.Writer)
			fmt.Fprintln(f.Writer, sd.Opening)
		}
	})
}
