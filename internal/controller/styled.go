package controller

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	m "github.com/halfmoth/graft/internal/model"
)

// StyledUI implements UI with lipgloss-styled verdict lines for interactive
// terminals. It presents the same facts as SimpleUI.
type StyledUI struct {
	output io.Writer

	ok   lipgloss.Style
	bad  lipgloss.Style
	warn lipgloss.Style
	dim  lipgloss.Style
}

// NewStyledUI creates a new StyledUI.
func NewStyledUI(output io.Writer) *StyledUI {
	return &StyledUI{
		output: output,
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		bad:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		dim:    lipgloss.NewStyle().Faint(true),
	}
}

// ShowApply prints the per-file results of a successful apply.
func (t *StyledUI) ShowApply(report *m.ApplyReport) {
	if report.StageCreated {
		t.printf("%s %s\n", t.dim.Render("stage created, session"), report.SessionID)
	}

	for _, path := range report.Written {
		t.printf("%s %s\n", t.ok.Render("staged"), path)
	}

	for _, path := range report.Deleted {
		t.printf("%s %s\n", t.warn.Render("deleted"), path)
	}

	for _, check := range report.Checks {
		verdict := t.ok.Render("pass")
		if !check.Passed {
			verdict = t.bad.Render("FAIL")
		}

		t.printf("check [%s] %s\n", verdict, check.Command)

		if !check.Passed && check.Output != "" {
			t.printf("%s\n", t.dim.Render(indent(check.Output)))
		}
	}

	t.printf("%s\n", t.dim.Render("applied to stage; run `graft promote` to make it real"))
}

// ShowRejection prints a rejection verdict with diagnostics.
func (t *StyledUI) ShowRejection(err error) {
	t.printf("%s %s\n", t.bad.Render("rejected:"), RejectionText(err))
}

// ShowStatus prints the session table.
func (t *StyledUI) ShowStatus(report *m.StatusReport) {
	t.printf("%s", StatusTable(report))
}

// ShowPromotion reports a successful promotion.
func (t *StyledUI) ShowPromotion(session *m.Session) {
	t.printf("%s promoted %d path(s); stage cleared\n", t.ok.Render("ok"), len(session.Touched))
}

// ShowReset reports a completed reset.
func (t *StyledUI) ShowReset() {
	t.printf("stage and session state removed\n")
}

func (t *StyledUI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.output, format, args...)
}
