package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/tally-core/internal/infrastructure/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or roll back schema migrations",
		Long: `Opening the database applies any pending migrations, so "status"
always reports the schema this binary ships.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateStatus,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert the most recent migration (development only)",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	})
	return cmd
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(resolveConfigPath())
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.MigrationStatus(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	printStatus(cmd.OutOrStdout(), status)
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig(resolveConfigPath())
	if err != nil {
		return err
	}
	db, err := openDatabase(cmd.Context(), cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	reverted, err := db.MigrateDown(cmd.Context())
	if err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	if reverted == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", reverted)
	return nil
}

func printStatus(w io.Writer, status database.MigrationStatus) {
	for _, m := range status.Applied {
		fmt.Fprintf(w, "applied  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "pending  %s  %s\n", m.Version, m.Name)
	}
	for _, v := range status.Unknown {
		fmt.Fprintf(w, "unknown  %s\n", v)
	}
}
