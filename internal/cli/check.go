package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/engine"
)

// CheckResult holds the outcome of a configuration check.
type CheckResult struct {
	ConfigPath     string   `json:"config_path"`
	Files          []string `json:"files"`
	ExecutionOrder []string `json:"execution_order"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration without touching any instance",
		Long: `Load and validate the configuration, decode every plugin section, and
resolve the instance execution order. No network I/O is performed: this
surfaces every configuration error a run would hit before it starts.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	step := func(name string, err error) error {
		if err != nil {
			fmt.Fprintf(formatter.GetErrWriter(), "%s: FAILED\n", name)
			formatter.Error(err.Error())
			return WrapExitError(ExitFailure, name, err)
		}
		if opts.Format != "json" {
			fmt.Fprintf(formatter.Writer, "%s: PASSED\n", name)
		}
		return nil
	}

	file, err := config.Load(opts.ConfigPath)
	if stepErr := step("Loading configuration", err); stepErr != nil {
		return stepErr
	}

	registry, err := installedPlugins()
	if stepErr := step("Loading plugins", err); stepErr != nil {
		return stepErr
	}

	seq := engine.New(registry)
	order, err := seq.Plan(file)
	if stepErr := step("Resolving instance dependencies", err); stepErr != nil {
		return stepErr
	}

	if opts.Format == "json" {
		result := CheckResult{ConfigPath: file.Path, Files: file.Files}
		for _, ref := range order {
			result.ExecutionOrder = append(result.ExecutionOrder, ref.String())
		}
		return formatter.JSON(result)
	}

	fmt.Fprintln(formatter.Writer, "Execution order:")
	for i, ref := range order {
		fmt.Fprintf(formatter.Writer, "  %d. %s\n", i+1, ref)
	}
	fmt.Fprintln(formatter.Writer, "Configuration check successful.")
	return nil
}
