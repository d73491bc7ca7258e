package main

import (
	"github.com/spf13/cobra"
)

func NewSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local state with the remote document service",
	}
	cmd.AddCommand(newSyncPullCommand())
	return cmd
}

func newSyncPullCommand() *cobra.Command {
	out := &outputFlags{}
	cmd := &cobra.Command{
		Use:   "pull <uid>",
		Short: "Run the sign-in reconciliation once and stop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.Sync.Pull(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			progress, err := a.Tracker.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), out.format, map[string]interface{}{
				"outcome":    string(outcome),
				"resolution": string(a.Sync.Config().Resolution),
				"progress":   progress,
			})
		},
	}
	out.bind(cmd)
	return cmd
}
