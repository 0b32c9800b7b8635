package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool     `json:"valid"`
	Participants int      `json:"participants,omitempty"`
	Conductors   int      `json:"conductors,omitempty"`
	Rounds       int      `json:"rounds,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a tournament definition without running it",
		Long: `Validate a CUE tournament definition without running the tournament.

Checks syntax, participant uniqueness, conductor count, and the
timeout/retry policy. Faster than run for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		code := ErrCodeGeneric
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			code = loadErr.Code
		}
		if ferr := formatter.Error(code, err.Error(), nil); ferr != nil {
			return WrapExitError(ExitCommandError, "failed to render error", ferr)
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	// n participants play n-1 rounds, or n with a bye when n is odd.
	rounds := len(cfg.Participants) - 1
	if len(cfg.Participants)%2 != 0 {
		rounds = len(cfg.Participants)
	}

	result := ValidationResult{
		Valid:        true,
		Participants: len(cfg.Participants),
		Conductors:   cfg.Conductors,
		Rounds:       rounds,
	}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("valid: %d participants, %d conductors, %d rounds",
		result.Participants, result.Conductors, result.Rounds))
}
