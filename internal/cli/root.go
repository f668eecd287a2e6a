// Package cli implements the trimtab command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/plugin"
	"github.com/trimtab-dev/trimtab/internal/plugin/dummy"
)

// Version is the release version, overridden at build time.
var Version = "0.1.0"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the trimtab CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "trimtab",
		Short: "Declarative remote instance configuration",
		Long: "trimtab reconciles remote application instances against a declarative\n" +
			"YAML configuration: it reads each instance's current state, computes the\n" +
			"differences, and pushes only what changed.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "trimtab.yml", "configuration file path")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides the configuration")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewDumpConfigCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// installedPlugins builds the registry of plugins this build ships
// with.
func installedPlugins() (*plugin.Registry, error) {
	return plugin.NewRegistry(
		dummy.New(),
		dummy.NewNamed("dummy2"),
	)
}

// setupLogging configures the process logger from the configuration,
// with the --log-level flag taking precedence.
func setupLogging(opts *RootOptions, settings config.Settings) (*slog.Logger, error) {
	name := settings.LogLevel
	if opts.LogLevel != "" {
		name = opts.LogLevel
	}
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", name)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
	return log, nil
}
