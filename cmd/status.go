package cmd

import (
	"github.com/spf13/cobra"
)

// statusCmd represents the status command.
var statusCmd = newStatusCmd()

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the staging session: touched paths, staleness, backups",
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			report, err := d.pipeline.Status()
			if err != nil {
				return err
			}

			ui.ShowStatus(report)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
