// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/pbctl/cmd/pbctl/handlers"
	"github.com/imamik/pbctl/internal/config"
	"github.com/imamik/pbctl/internal/simulator"
)

// Root returns the root command for the pbctl CLI.
//
// Global flags are bound once here and shared by every subcommand.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "pbctl",
		Short:         "Start, stop and shut down cloud servers and wait until they get there",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigFile, "Path to configuration file (YAML or TOML)")
	flags.StringVar(&opts.Backend, "backend", handlers.BackendLive, "Backend to use: live or sim")
	flags.StringVar(&opts.SimOutcomes, "sim-outcomes", "all", "Simulated operations that succeed (comma-separated: start,stop,update,service-check,shutdown; all; none)")
	flags.DurationVar(&opts.SimLatency, "sim-latency", simulator.DefaultLatency, "Simulated per-call latency")
	flags.StringVar(&opts.SimStateDir, "sim-state-dir", "", "Persist simulated server state in this directory")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	flags.BoolVar(&opts.Trace, "trace", false, "Print OpenTelemetry spans to stderr")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile on exit")

	// Tracked operations
	cmd.AddCommand(Start(opts))
	cmd.AddCommand(Stop(opts))
	cmd.AddCommand(Shutdown(opts))
	cmd.AddCommand(ShutdownStop(opts))
	cmd.AddCommand(Group(opts))

	// Queries and single calls
	cmd.AddCommand(Status(opts))
	cmd.AddCommand(Servers(opts))
	cmd.AddCommand(Datacenters(opts))
	cmd.AddCommand(Update(opts))
	cmd.AddCommand(Check(opts))
	cmd.AddCommand(CheckFS(opts))

	// Utility commands
	cmd.AddCommand(Keygen())
	cmd.AddCommand(Version())

	return cmd
}
