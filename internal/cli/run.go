package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/engine"
	"github.com/trimtab-dev/trimtab/internal/secrets"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile all configured instances",
		Long: `Load the configuration, resolve the instance execution order, and
reconcile every instance against its remote: fetch current state, compute
the differences, and push an update when anything changed.

Secrets and run history are persisted to the state database configured
under the trimtab section.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, cmd)
		},
	}
	return cmd
}

func runRun(opts *RootOptions, cmd *cobra.Command) error {
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
	formatter.VerboseLog("Loaded configuration from %d file(s)", len(file.Files))

	log, err := setupLogging(opts, file.Settings)
	if err != nil {
		formatter.Error(err.Error())
		return WrapExitError(ExitCommandError, "configuring logging", err)
	}

	registry, err := installedPlugins()
	if err != nil {
		return WrapExitError(ExitCommandError, "loading plugins", err)
	}

	statePath := file.Settings.StatePath
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(filepath.Dir(file.Path), statePath)
	}
	store, err := secrets.Open(statePath)
	if err != nil {
		formatter.Error(err.Error())
		return WrapExitError(ExitCommandError, "opening state database", err)
	}
	defer store.Close()

	seq := engine.New(registry, engine.WithStore(store), engine.WithLogger(log))
	report, err := seq.Run(cmd.Context(), file)
	if err != nil {
		formatter.Error(err.Error())
		return WrapExitError(ExitFailure, "reconciliation run failed", err)
	}

	if opts.Format == "json" {
		if err := formatter.JSON(reportToData(report)); err != nil {
			return err
		}
	} else {
		renderReport(formatter.Writer, report)
	}

	if report.Failed() {
		return NewExitError(ExitFailure, "one or more instances failed to reconcile")
	}
	return nil
}
