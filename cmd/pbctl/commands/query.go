package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/imamik/pbctl/cmd/pbctl/handlers"
)

// Status returns the command that shows a server's current state.
func Status(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <label>",
		Short: "Show the current state of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Status(cmd.Context(), opts, args[0])
		},
	}
}

// Servers returns the command that lists the servers of a datacenter.
func Servers(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "servers <datacenter>",
		Short: "List the servers of a configured datacenter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Servers(cmd.Context(), opts, args[0])
		},
	}
}

// Datacenters returns the command that lists datacenters.
func Datacenters(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "datacenters",
		Short: "List the datacenters visible to the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Datacenters(cmd.Context(), opts)
		},
	}
}

// Update returns the command that applies a resource profile.
func Update(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "update <label> <profile>",
		Short: "Apply a configured resource profile to a server",
		Long: `Change the cores and RAM of a server to those of a configured profile.

Examples:
  pbctl update web-1 prod`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Update(cmd.Context(), opts, args[0], args[1])
		},
	}
}

// Check returns the command that polls a remote command until it succeeds.
func Check(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check <label> <command...>",
		Short: "Run a command over SSH until it exits 0",
		Long: `Run a command on the server over SSH, once per poll interval, until it
exits 0 or the attempt budget is used up.

Examples:
  pbctl check web-1 systemctl is-active nginx`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Check(cmd.Context(), opts, args[0], strings.Join(args[1:], " "))
		},
	}
}

// CheckFS returns the command that waits for FreeSWITCH to come up.
func CheckFS(opts *handlers.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-fs <label>",
		Short: "Wait until the FreeSWITCH service reports running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Check(cmd.Context(), opts, args[0], handlers.FreeSWITCHStatusCommand)
		},
	}
}
