package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"photolineart-backend/internal/database"
	"photolineart-backend/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, err := databaseURL()
			if err != nil {
				return err
			}
			return runMigrations(dbURL)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("steps must be a number: %w", err)
				}
				steps = n
			}
			dbURL, err := databaseURL()
			if err != nil {
				return err
			}
			return withMigrator(dbURL, func(m *database.Migrator) error {
				return m.Down(steps)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, err := databaseURL()
			if err != nil {
				return err
			}
			return withMigrator(dbURL, func(m *database.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return fmt.Errorf("failed to read version: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

// databaseURL reads DATABASE_URL without the full server configuration so
// migrations can run with nothing else set.
func databaseURL() (string, error) {
	_ = godotenv.Load(".env")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return "", fmt.Errorf("DATABASE_URL is required")
	}
	return dbURL, nil
}

func withMigrator(dbURL string, fn func(m *database.Migrator) error) error {
	m, err := database.NewMigrator(dbURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Log.WithError(err).Warn("Failed to close migrator")
		}
	}()
	return fn(m)
}

func runMigrations(dbURL string) error {
	return withMigrator(dbURL, func(m *database.Migrator) error {
		return m.Run()
	})
}
