package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eventhint/eventhint/pkg/db"
)

// NewMigrateCommand creates the database migration command.
func NewMigrateCommand() *cobra.Command {
	var (
		cfgFile      string
		migrationDir string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending database migrations.

Migration files are SQL files named with numeric prefixes (e.g.
001_init.sql) and applied in order. Applied versions are tracked in the
schema_migrations table, so re-running is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cfgFile, migrationDir)
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&migrationDir, "dir", "migrations", "directory containing migration files")
	return cmd
}

func runMigrate(ctx context.Context, cfgFile, migrationDir string) error {
	settings, err := loadSettings(cfgFile)
	if err != nil {
		return err
	}

	pool, err := connectDatabase(ctx, settings)
	if err != nil {
		return err
	}
	defer db.Close(pool)

	result, err := db.RunMigrations(ctx, pool, os.DirFS(migrationDir))
	if err != nil {
		return err
	}

	for _, v := range result.Applied {
		fmt.Printf("applied  %s\n", v)
	}
	for _, v := range result.Skipped {
		fmt.Printf("skipped  %s\n", v)
	}
	if len(result.Applied) == 0 {
		fmt.Println("database is up to date")
	}
	return nil
}
