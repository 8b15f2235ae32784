// Package main is the entry point for the pbctl CLI.
//
// pbctl starts, stops and shuts down remote virtual servers by label and
// waits until each server has confirmably reached its target state. It talks
// to the IONOS Cloud API or Hetzner Cloud, or to a built-in simulator.
//
// Commands: start, stop, shutdown, shutdown-stop, status, servers,
// datacenters, update, check, check-fs, group, keygen, version.
//
// For detailed usage information, run:
//
//	pbctl --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/imamik/pbctl/cmd/pbctl/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Credentials may live in a .env file next to the config.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
