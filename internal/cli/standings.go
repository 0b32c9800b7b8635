package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/store"
)

// StandingsOptions holds flags for the standings command.
type StandingsOptions struct {
	*RootOptions
	Database string
	Round    int
}

// StandingsReport is the standings command's JSON payload.
type StandingsReport struct {
	Round     int            `json:"round"`
	Standings []ledger.Entry `json:"standings"`
}

// NewStandingsCommand creates the standings command.
func NewStandingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StandingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "standings",
		Short: "Show archived standings",
		Long: `Show the standings table archived at a round boundary.

Defaults to the latest published round; --round selects an earlier one.

Example:
  ludus standings --db ./ludus.db
  ludus standings --db ./ludus.db --round 2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStandings(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Round, "round", 0, "round to show (default: latest)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStandings(opts *StandingsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	round := opts.Round
	if round == 0 {
		round, err = st.LatestRound(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find latest round", err)
		}
		if round == 0 {
			return NewExitError(ExitCommandError, "no standings archived yet")
		}
	}

	entries, err := st.ReadStandings(ctx, round)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read standings", err)
	}
	if len(entries) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no standings archived for round %d", round))
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(StandingsReport{Round: round, Standings: entries})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Round %d\n", round)
	fmt.Fprint(cmd.OutOrStdout(), ledger.FormatTable(entries))
	return nil
}
