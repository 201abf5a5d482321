package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"apkd/internal/config"
	"apkd/internal/metastore"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect sqlite metadata schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Metadata.Backend != metastore.BackendSQLite {
				return fmt.Errorf("migrate requires metadata.backend = %q (current: %q)", metastore.BackendSQLite, cfg.Metadata.Backend)
			}

			if inspect || dryRun {
				plan, err := metastore.MigrationPlan(cfg.Metadata.Path)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				return writeMigrationPlan(plan)
			}

			// Run migrations (same as what happens on server start).
			st, err := metastore.OpenSQLite(cfg.Metadata.Path)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := st.Close(); err != nil {
				return err
			}

			plan, err := metastore.MigrationPlan(cfg.Metadata.Path)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(plan); ok || err != nil {
				return err
			}
			return writePlain("Migrations applied successfully (schema version %d).\n", plan.CurrentVersion)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func writeMigrationPlan(plan *metastore.MigrationStatus) error {
	if ok, err := writeStructured(plan); ok || err != nil {
		return err
	}
	lines := []string{
		fmt.Sprintf("Current version: %d", plan.CurrentVersion),
		fmt.Sprintf("Available version: %d", plan.AvailableVersion),
	}
	if len(plan.Pending) == 0 {
		lines = append(lines, "No pending migrations.")
	} else {
		lines = append(lines, fmt.Sprintf("Pending migrations: %d", len(plan.Pending)))
		for _, m := range plan.Pending {
			lines = append(lines, fmt.Sprintf("  %d: %s", m.Version, m.Description))
		}
	}
	return writeLines(lines...)
}
