// Copyright 2025 CruxStack
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/cruxstack/workerbridge/internal/host"
	"github.com/cruxstack/workerbridge/internal/shared"
	"github.com/cruxstack/workerbridge/internal/worker"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "worker-bridge",
	Short: "Serve an application root as an application-server worker",
	Long: `worker-bridge reads length-prefixed msgpack request frames on stdin,
dispatches them through the application at BRIDGE_ROOT_DIR and writes
response frames to stdout. Logs go to stderr.`,
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "worker-bridge %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Flags().String("root", "", "application root directory (overrides BRIDGE_ROOT_DIR)")
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	// stdout carries frames
	ctx = clog.WithLogger(ctx, clog.New(shared.NewSlogHandlerTo(os.Stderr)))

	if root, _ := cmd.Flags().GetString("root"); root != "" {
		if err := os.Setenv("BRIDGE_ROOT_DIR", root); err != nil {
			return err
		}
	}
	cfg, err := host.LoadConfig()
	if err != nil {
		return err
	}

	store, err := host.OpenSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := host.NewBridge(ctx, cfg, store, nil)
	if err != nil {
		return err
	}
	defer b.Close()

	return worker.NewLoop(b, bufio.NewReader(os.Stdin), bufio.NewWriter(os.Stdout)).Serve(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
