// Package controller provides output adapters for displaying ingestion
// results.
package controller

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	m "github.com/halfmoth/graft/internal/model"
)

// UI defines the interface for presenting pipeline outcomes. Implementations
// can use different output methods (plain text, styled).
type UI interface {
	ShowApply(report *m.ApplyReport)
	ShowRejection(err error)
	ShowStatus(report *m.StatusReport)
	ShowPromotion(session *m.Session)
	ShowReset()
}

// NewUI creates a UI based on whether the output is a terminal. Styled
// output for interactive terminals, plain text for pipes and files.
func NewUI(cmd *cobra.Command, useTTY bool) UI {
	if useTTY {
		return NewStyledUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY checks if the given writer is a terminal (TTY).
// Returns false if the output is redirected to a file or pipe.
func IsTTY(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return false
	}

	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
