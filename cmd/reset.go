package cmd

import (
	"github.com/spf13/cobra"
)

// resetCmd represents the reset command.
var resetCmd = newResetCmd()

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard the staged workspace and session state",
		Long: `Reset deletes the staging directory and the session record
unconditionally. The real workspace is untouched. Always available as an
escape hatch, including after a half-broken session.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			if err := d.pipeline.Reset(); err != nil {
				return err
			}

			ui.ShowReset()

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
