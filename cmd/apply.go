package cmd

import (
	"github.com/spf13/cobra"

	"github.com/halfmoth/graft/internal/adapter"
)

var applyFileFlag string
var applyClipboardFlag bool

// applyCmd represents the apply command.
var applyCmd = newApplyCmd()

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Ingest a payload into the staged workspace",
		Long: `Apply parses a payload, validates it against its manifest and the path
safety rules, and applies it to the staged workspace. The real workspace is
never touched. Reads from stdin unless --file or --clipboard is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := buildDeps()
			if err != nil {
				return err
			}
			defer d.close()

			source := adapter.NewStdinSource(cmd.InOrStdin())

			switch {
			case applyFileFlag != "":
				source = adapter.NewFileSource(applyFileFlag)
			case applyClipboardFlag:
				source = adapter.NewClipboardSource()
			}

			payload, err := source.Read()
			if err != nil {
				return err
			}

			report, err := d.pipeline.Apply(payload, source.Name())
			if err != nil {
				return err
			}

			ui.ShowApply(report)

			return nil
		},
	}
	cmd.Flags().StringVarP(&applyFileFlag, "file", "f", "", "read the payload from a file")
	cmd.Flags().BoolVarP(&applyClipboardFlag, "clipboard", "c", false, "read the payload from the system clipboard")

	return cmd
}

func init() {
	rootCmd.AddCommand(applyCmd)
}
