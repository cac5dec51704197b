package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/saga/internal/commit"
	"github.com/roach88/saga/internal/projection"
	"github.com/roach88/saga/internal/store"
)

// session is an open database plus the engine wired to it.
type session struct {
	store       *store.Store
	coordinator *commit.Coordinator
}

// openSession opens the configured database and builds the commit
// coordinator from the resolved settings.
func openSession(opts *RootOptions) (*session, error) {
	st, err := store.Open(opts.Config.DBPath, opts.Config.StoreOptions())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	projector := projection.New(
		projection.WithRules(opts.Config.RuleOptions()),
		projection.WithLogger(opts.Logger),
	)
	coordinator := commit.New(
		commit.WithProjector(projector),
		commit.WithEnricher(commit.RecapEnricher{Window: opts.Config.RecapWindow}),
		commit.WithLogger(opts.Logger),
	)
	return &session{store: st, coordinator: coordinator}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// campaignError maps a lookup failure to an exit error.
func campaignError(id string, err error) error {
	if store.IsNotFound(err) {
		return NewExitError(ExitCommandError, "campaign not found: "+id)
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitCommandError, "failed to read campaign "+id, err)
}

// emit writes data as a JSON response, or calls text for human output.
func emit(cmd *cobra.Command, opts *RootOptions, data any, text func(f *OutputFormatter)) error {
	f := opts.formatter(cmd)
	if f.Format == "json" {
		return f.Success(data)
	}
	text(f)
	return nil
}
