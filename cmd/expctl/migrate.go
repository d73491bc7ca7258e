package main

import (
	"fmt"

	"github.com/Ayash-Bera/metricslab/backend/internal/database"
	"github.com/Ayash-Bera/metricslab/backend/internal/migration"
	"github.com/spf13/cobra"
)

func NewMigrateCommand() *cobra.Command {
	var sqlDir string
	out := &outputFlags{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrates or initializes the PostgreSQL database to the latest schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dbm, err := database.NewManager(&database.Config{
				DatabaseURL: cfg.Database.URL,
				LogLevel:    cfg.Log.Level,
			}, logger)
			if err != nil {
				return fmt.Errorf("could not connect to db: %w", err)
			}
			defer dbm.Close()

			report, err := migration.NewRunner(dbm, logger).RunMigrations(sqlDir)
			if err != nil {
				return fmt.Errorf("could not migrate db: %w", err)
			}
			return render(cmd.OutOrStdout(), out.format, report)
		},
	}

	out.bind(cmd)
	cmd.Flags().StringVar(&sqlDir, "sql-dir", "./migrations", "Directory of .sql migrations (empty to skip)")
	return cmd
}
