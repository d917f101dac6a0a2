package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/spf13/cobra"
)

var (
	migrationsPath string
	downSteps      int
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `Apply or roll back schema migrations.

"up" applies the application migrations and then the job queue tables;
the server needs both. "down" rolls back application migrations only.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadMigrateConfig()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)

		if err := postgres.MigrateUp(cfg.Database.URL, migrationsPath); err != nil {
			return err
		}
		version, dirty, err := postgres.MigrationVersion(cfg.Database.URL, migrationsPath)
		if err != nil {
			return err
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema migrations applied")

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		pool, err := postgres.NewPool(ctx, cfg.Database.URL, 2)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		if err := postgres.MigrateRiver(logger.WithContext(ctx), pool); err != nil {
			return err
		}
		logger.Info().Msg("job queue migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadMigrateConfig()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)

		if err := postgres.MigrateDown(cfg.Database.URL, migrationsPath, downSteps); err != nil {
			return err
		}
		logger.Info().Int("steps", downSteps).Msg("schema migrations rolled back")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadMigrateConfig()
		if err != nil {
			return err
		}
		version, dirty, err := postgres.MigrationVersion(cfg.Database.URL, migrationsPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty:   %t\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", postgres.DefaultMigrationsPath, "directory holding the SQL migrations")
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

// loadMigrateConfig needs only DATABASE_URL, so a missing JWT secret is not
// an error here.
func loadMigrateConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err == nil {
		return cfg, nil
	}
	fallback := config.Defaults()
	fallback.Database.URL = os.Getenv("DATABASE_URL")
	if fallback.Database.URL == "" {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if logLevel != "" {
		fallback.Logging.Level = logLevel
	}
	if logFormat != "" {
		fallback.Logging.Format = logFormat
	}
	return fallback, nil
}
