// @title           PhotoLineArt API
// @version         1.0.0
// @description     Turns photos into line-art coloring pages with matched colored-pencil palettes, builds coloring books and shares them through portals.

// @contact.name   API Support
// @contact.email  support@photolineart.app

// @host      localhost:8080
// @BasePath  /

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "photolineart-server",
		Short:         "PhotoLineArt API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), serveOptions{migrate: true})
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	return rootCmd
}
