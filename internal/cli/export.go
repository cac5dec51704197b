package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/archive"
	"github.com/roach88/saga/internal/projection"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
	Check  bool
}

// ExportResult describes a written archive.
type ExportResult struct {
	Path          string `json:"path"`
	Format        string `json:"format"`
	EventCount    int    `json:"event_count"`
	RenderedCount int    `json:"rendered_count"`
	Checked       bool   `json:"checked"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <campaign-id>",
		Short: "Export a campaign's log as a compressed archive",
		Long: `Write the campaign's full event log, hidden events included, and its
rendered turns to a zstd-compressed JSON-lines archive.

With --check the archive is read back and its log folded from scratch;
the result must match the current projections.

Exit codes:
  0 - Archive written (and checked)
  1 - Archive check failed
  2 - Command error (campaign not found, unwritable path, etc.)

Examples:
  saga export 0190f3c2-...
  saga export 0190f3c2-... -o backup.saga.zst --check`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "archive path (default: <campaign-id>.saga.zst)")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "read the archive back and compare it with the projections")

	return cmd
}

func runExport(opts *ExportOptions, campaignID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	path := opts.Output
	if path == "" {
		path = campaignID + ".saga.zst"
	}

	s, err := openSession(opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.store.GetCampaign(ctx, campaignID); err != nil {
		return campaignError(campaignID, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create archive", err)
	}
	header, err := archive.Export(ctx, s.store, campaignID, out, time.Now())
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return WrapExitError(ExitCommandError, "failed to export campaign", err)
	}
	f.VerboseLog("Wrote %d events and %d rendered turns to %s", header.EventCount, header.RenderedCount, path)

	result := ExportResult{
		Path:          path,
		Format:        header.Format,
		EventCount:    header.EventCount,
		RenderedCount: header.RenderedCount,
	}

	if opts.Check {
		divergences, err := checkArchive(opts, s, campaignID, path, cmd)
		if err != nil {
			return err
		}
		if len(divergences) > 0 {
			return f.Fail(ExitFailure, CodeDivergence, fmt.Sprintf("archive diverges from projections in %d field(s)", len(divergences)), divergences)
		}
		result.Checked = true
	}

	return emit(cmd, opts.RootOptions, result, func(f *OutputFormatter) {
		fmt.Fprintf(f.Writer, "Exported %d events and %d rendered turns to %s\n", result.EventCount, result.RenderedCount, result.Path)
		if result.Checked {
			fmt.Fprintln(f.Writer, "✓ Archive replays to the current state")
		}
	})
}

// checkArchive reads the archive at path back and compares its folded log
// with the stored projections.
func checkArchive(opts *ExportOptions, s *session, campaignID, path string, cmd *cobra.Command) ([]projection.Divergence, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to reopen archive", err)
	}
	defer in.Close()

	a, err := archive.Read(in)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "archive is unreadable", err)
	}
	snap, err := s.store.LoadSnapshot(commandContext(cmd), campaignID)
	if err != nil {
		return nil, campaignError(campaignID, err)
	}
	replayed := a.Fold(opts.Config.RuleOptions()).Snapshot()
	return projection.Compare(snap, replayed), nil
}
