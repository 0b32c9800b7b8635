package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ludus/internal/ledger"
	"github.com/roach88/ludus/internal/store"
)

// ResultsOptions holds flags for the results command.
type ResultsOptions struct {
	*RootOptions
	Database string
	Round    int
}

// OutcomeRow is one archived outcome in the results command's JSON payload.
type OutcomeRow struct {
	Fixture    string `json:"fixture"`
	Round      int    `json:"round"`
	Outcome    string `json:"outcome"`
	Winner     string `json:"winner,omitempty"`
	DrawnValue int    `json:"drawn_value,omitempty"`
}

// ResultsReport is the results command's JSON payload.
type ResultsReport struct {
	Outcomes []OutcomeRow `json:"outcomes"`
}

// NewResultsCommand creates the results command.
func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show archived match outcomes",
		Long: `Show every match outcome in the archive, in application order.

Example:
  ludus results --db ./ludus.db
  ludus results --db ./ludus.db --round 2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Round, "round", 0, "restrict to one round (default: all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	outcomes, err := st.ReadOutcomes(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read outcomes", err)
	}
	if opts.Round > 0 {
		filtered := outcomes[:0]
		for _, o := range outcomes {
			if o.Round == opts.Round {
				filtered = append(filtered, o)
			}
		}
		outcomes = filtered
	}
	if len(outcomes) == 0 {
		return NewExitError(ExitCommandError, "no outcomes archived yet")
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		}
		report := ResultsReport{Outcomes: make([]OutcomeRow, 0, len(outcomes))}
		for _, o := range outcomes {
			report.Outcomes = append(report.Outcomes, OutcomeRow{
				Fixture:    o.FixtureID,
				Round:      o.Round,
				Outcome:    o.Kind.String(),
				Winner:     o.Winner(),
				DrawnValue: o.DrawnValue,
			})
		}
		return formatter.Success(report)
	}

	fmt.Fprint(cmd.OutOrStdout(), ledger.FormatOutcomes(outcomes))
	return nil
}
