package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func NewStateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset a participant's persisted state",
	}
	cmd.AddCommand(newStateShowCommand(), newStateResetCommand())
	return cmd
}

func newStateShowCommand() *cobra.Command {
	out := &outputFlags{}
	cmd := &cobra.Command{
		Use:   "show <uid>",
		Short: "Print the normalized state of a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			state, err := a.Tracker.State(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			// Round-trip through JSON so yaml output keeps the wire field names.
			raw, err := json.Marshal(state)
			if err != nil {
				return err
			}
			var doc interface{}
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), out.format, doc)
		},
	}
	out.bind(cmd)
	return cmd
}

func newStateResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <uid>",
		Short: "Delete a participant's persisted state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Tracker.ResetExperiment(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.WithField("user_id", args[0]).Info("Experiment state reset")
			return nil
		},
	}
}

func NewProgressCommand() *cobra.Command {
	out := &outputFlags{}
	cmd := &cobra.Command{
		Use:   "progress <uid>",
		Short: "Print gate status and stage for a participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			progress, err := a.Tracker.Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), out.format, progress)
		},
	}
	out.bind(cmd)
	return cmd
}
