package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tvhoang12/IOT-Air-Quality-Management-System/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, database.MigrateUp)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the last migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd, database.MigrateDown)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE:  runMigrateVersion,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func runMigrate(cmd *cobra.Command, direction string) error {
	err := database.RunMigrations(configFrom(cmd).DSN(), direction)
	if errors.Is(err, database.ErrNoChange) {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is already up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Migrations applied (%s)\n", direction)
	return runMigrateVersion(cmd, nil)
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	version, dirty, err := database.MigrationVersion(configFrom(cmd).DSN())
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (%s)\n", version, state)
	return nil
}
