// Package main provides the entry point for the docflow service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0-dev"
	configPath string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:     "docflow",
		Short:   "Keeps operational documentation in step with completed tracker tickets",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "docflow.yaml", "Path to the configuration file")

	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
