package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/pbctl/cmd/pbctl/handlers"
	"github.com/imamik/pbctl/internal/lifecycle"
)

// Start returns the command that powers a server on.
func Start(opts *handlers.Options) *cobra.Command {
	return trackedCommand(opts, lifecycle.OpStart, "Start a server and wait until it is running",
		`Power on the server and poll until it reports AVAILABLE/RUNNING.

Examples:
  pbctl start web-1
  pbctl start web-1 --backend sim --sim-outcomes start`)
}

// Stop returns the command that powers a server off through the control plane.
func Stop(opts *handlers.Options) *cobra.Command {
	return trackedCommand(opts, lifecycle.OpStop, "Stop a server and wait until it is deallocated",
		`Power off the server through the provider API and poll until it reports
INACTIVE/SHUTOFF.

Examples:
  pbctl stop web-1`)
}

// Shutdown returns the command that shuts a server down over SSH.
func Shutdown(opts *handlers.Options) *cobra.Command {
	return trackedCommand(opts, lifecycle.OpShutdown, "Shut a server down gracefully over SSH",
		`Run "shutdown -P now" on the server over SSH and poll until the provider
reports AVAILABLE/SHUTOFF.

Examples:
  pbctl shutdown web-1`)
}

// ShutdownStop returns the command that shuts a server down, then stops it.
func ShutdownStop(opts *handlers.Options) *cobra.Command {
	return trackedCommand(opts, lifecycle.OpShutdownStop, "Shut a server down gracefully, then stop it",
		`Shut the server down over SSH, then stop it through the provider API.
The stop runs even if the graceful shutdown fails.

Examples:
  pbctl shutdown-stop web-1`)
}

func trackedCommand(opts *handlers.Options, op lifecycle.Operation, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   string(op) + " <label>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Tracked(cmd.Context(), opts, op, args[0])
		},
	}
}

// Group returns the command that runs a tracked operation on a server group.
func Group(opts *handlers.Options) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "group <start|stop|shutdown|shutdown-stop> <group>",
		Short: "Run a tracked operation on every server of a group",
		Long: `Run a tracked operation on every server of a configured group in parallel.
The command fails if any server fails; every failure is reported.

Examples:
  pbctl group start office
  pbctl group shutdown-stop office --parallel 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := lifecycle.ParseGroupOperation(args[0])
			if err != nil {
				return err
			}
			return handlers.Group(cmd.Context(), opts, op, args[1], parallel)
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", 0, "Maximum number of servers handled at once (0 = all)")

	return cmd
}
