package cmd

import (
	"github.com/spf13/cobra"
)

// promoteCmd represents the promote command.
var promoteCmd = newPromoteCmd()

func newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Copy touched paths from the stage into the real workspace",
		Long: `Promote backs up every real file about to change, then copies the staged
version of each touched path into the real workspace. If anything fails
partway, every already-modified file is restored from the backup and the
real workspace is left exactly as it was.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			session, err := d.pipeline.Promote()
			if err != nil {
				return err
			}

			ui.ShowPromotion(session)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}
