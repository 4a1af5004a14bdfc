package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/polygene/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Path   string   `json:"path,omitempty"`
	Driver string   `json:"driver,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	if r.Path == "" {
		return fmt.Sprintf("✓ default configuration valid (driver %s)", r.Driver)
	}
	return fmt.Sprintf("✓ %s valid (driver %s)", r.Path, r.Driver)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a configuration file",
		Long: `Validate a configuration file against the configuration schema
without opening its store.

The file defaults to --config. Every violation is reported, not just the first.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	cfg, err := config.Load(path)
	if err == nil {
		return f.Success(ValidationResult{Valid: true, Path: path, Driver: cfg.Store.Driver})
	}

	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		return f.Fail(CodeConfig, err)
	}
	if werr := f.Error(CodeConfig, fmt.Sprintf("%d configuration problem(s)", len(ve.Problems)), ve.Problems); werr != nil {
		return werr
	}
	if opts.Format != "json" {
		for _, p := range ve.Problems {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", p)
		}
	}
	return WrapExitError(ExitFailure, "invalid configuration", err)
}
