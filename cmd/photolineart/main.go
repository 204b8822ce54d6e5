package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"photolineart-backend/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

type globalOptions struct {
	server   string
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "photolineart",
		Short:         "PhotoLineArt command line tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(opts.logLevel, "development")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultServer := os.Getenv("PHOTOLINEART_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "PhotoLineArt API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level")

	rootCmd.AddCommand(newBatchCommand(opts))
	rootCmd.AddCommand(newPaletteCommand())
	rootCmd.AddCommand(newPDFCommand(opts))
	rootCmd.AddCommand(newCreditsCommand(opts))
	return rootCmd
}
