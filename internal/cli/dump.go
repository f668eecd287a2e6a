package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/trimtab-dev/trimtab/internal/config"
)

// NewDumpConfigCommand creates the dump-config command.
func NewDumpConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump-config",
		Short: "Print the merged configuration",
		Long: `Load the configuration, follow its includes, merge everything in load
order, and print the resulting document. Useful for checking what a run
would actually see after includes and overrides are applied.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDumpConfig(rootOpts, cmd)
		},
	}
	return cmd
}

func runDumpConfig(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	file, err := config.Load(opts.ConfigPath)
	if err != nil {
		formatter.Error(err.Error())
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}
	formatter.VerboseLog("Merged %d file(s)", len(file.Files))

	if opts.Format == "json" {
		return formatter.JSON(config.Plain(file.Tree))
	}

	enc := yaml.NewEncoder(formatter.Writer)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(file.Tree)
}
