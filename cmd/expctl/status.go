package main

import (
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	out := &outputFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check dependencies and print Redis statistics when Redis is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			report := map[string]interface{}{
				"health": a.Health.CheckAll(cmd.Context()),
			}
			if a.RedisStore != nil {
				stats, err := a.RedisStore.Stats(cmd.Context())
				if err != nil {
					logger.WithError(err).Warn("Failed to read redis stats")
				} else {
					report["redis"] = stats
				}
			}
			return render(cmd.OutOrStdout(), out.format, report)
		},
	}
	out.bind(cmd)
	return cmd
}
