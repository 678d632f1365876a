package controller

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "github.com/halfmoth/graft/internal/model"
)

// SimpleUI implements UI using cobra Command's Println.
type SimpleUI struct {
	cmd *cobra.Command
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// ShowApply prints the per-file results of a successful apply.
func (s *SimpleUI) ShowApply(report *m.ApplyReport) {
	if report.StageCreated {
		s.cmd.Printf("stage created (session %s)\n", report.SessionID)
	}

	for _, path := range report.Written {
		s.cmd.Printf("staged  %s\n", path)
	}

	for _, path := range report.Deleted {
		s.cmd.Printf("deleted %s\n", path)
	}

	for _, check := range report.Checks {
		verdict := "pass"
		if !check.Passed {
			verdict = "FAIL"
		}

		s.cmd.Printf("check [%s] %s\n", verdict, check.Command)

		if !check.Passed && check.Output != "" {
			s.cmd.Println(indent(check.Output))
		}
	}

	s.cmd.Println("applied to stage; run `graft promote` to make it real")
}

// ShowRejection prints a rejection with its class, the offending path and
// the diagnostic excerpts when present.
func (s *SimpleUI) ShowRejection(err error) {
	s.cmd.PrintErrf("rejected: %s\n", RejectionText(err))
}

// ShowStatus prints the session table.
func (s *SimpleUI) ShowStatus(report *m.StatusReport) {
	s.cmd.Print(StatusTable(report))
}

// ShowPromotion reports a successful promotion.
func (s *SimpleUI) ShowPromotion(session *m.Session) {
	s.cmd.Printf("promoted %d path(s); stage cleared\n", len(session.Touched))
}

// ShowReset reports a completed reset.
func (s *SimpleUI) ShowReset() {
	s.cmd.Println("stage and session state removed")
}

// RejectionText renders an error with its diagnostics. Shared by the plain
// and styled UIs so both present identical facts.
func RejectionText(err error) string {
	var b strings.Builder

	b.WriteString(err.Error())

	var patchErr *m.PatchError
	if errors.As(err, &patchErr) {
		for _, excerpt := range patchErr.Excerpts {
			b.WriteString(fmt.Sprintf("\n  near offset %d:\n%s", excerpt.Offset, indent(excerpt.Text)))
		}

		if patchErr.Advice != "" {
			b.WriteString("\n  next: " + patchErr.Advice)
		}
	}

	return b.String()
}

// StatusTable renders the status report as a table.
func StatusTable(report *m.StatusReport) string {
	var buf bytes.Buffer

	if !report.StageActive {
		buf.WriteString("no active staging session\n")
		fmt.Fprintf(&buf, "backups retained: %d\n", report.Backups)

		return buf.String()
	}

	fmt.Fprintf(&buf, "session %s (created %s)\n", report.SessionID, report.CreatedAt.Format("2006-01-02 15:04:05"))

	if report.Stale {
		buf.WriteString("warning: real workspace changed since stage creation\n")
	}

	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Path", "Disposition"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})

	for _, entry := range report.Touched {
		table.Append([]string{string(entry.Path), string(entry.Disposition)})
	}

	table.SetFooter([]string{
		fmt.Sprintf("Touched %d", len(report.Touched)),
		fmt.Sprintf("Backups %d", report.Backups),
	})

	table.Render()

	return buf.String()
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}

	return strings.Join(lines, "\n")
}
