package main

import (
	"os"

	"github.com/Ayash-Bera/metricslab/backend/internal/app"
	"github.com/Ayash-Bera/metricslab/backend/internal/config"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel   = "info"
	configPath = ""
	logger     = log.New()
)

var rootCmd = &cobra.Command{
	Use:   "expctl",
	Short: "Operator tool for experiment progress state",
	Long: `expctl inspects and resets participants' experiment state, runs a one-off
reconciliation with the remote document service and applies database
migrations. With the badger storage backend the server must be stopped
first, since badger allows a single process per data directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		logger.Debug("debug logging enabled")
		return nil
	},
}

// loadConfig reads configuration the same way the server does.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Log.Level = logLevel
	return cfg, nil
}

func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, logger)
}

func main() {
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	logger.SetFormatter(formatter)
	logger.SetOutput(os.Stderr)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace,debug,info,warn,error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config.yaml (default ./config.yaml)")

	rootCmd.AddCommand(
		NewStateCommand(),
		NewProgressCommand(),
		NewSyncCommand(),
		NewMigrateCommand(),
		NewStatusCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.WithError(err).Fatal("could not execute command")
	}
}
