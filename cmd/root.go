// Package cmd provides the root command and CLI setup for graft.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halfmoth/graft/internal/adapter"
	"github.com/halfmoth/graft/internal/config"
	"github.com/halfmoth/graft/internal/controller"
	"github.com/halfmoth/graft/internal/domain"
	m "github.com/halfmoth/graft/internal/model"
)

var ui controller.UI

func init() {
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
}

var chdirFlag string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graft",
		Short: "Staged, transactional application of pasted change payloads",
		Long: `Graft ingests untrusted multi-file change payloads (pasted text, not a
version-control diff) and applies them to a project with transactional
safety. Payloads land in a staged shadow copy of the workspace first;
nothing touches the real tree until you promote, and a failed promotion
rolls back completely.

A payload is a sequence of blocks:

  %%%GRAFT MANIFEST / PLAN / FILE <path> / PATCH <path> / DELETE <path>
  ...
  %%%END <same header>

Every content path must be declared in the manifest; any malformed,
ambiguous or unsafe payload is rejected whole, with zero writes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&chdirFlag, "chdir", "C", "", "run as if started in this directory")

	return cmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). Exit codes are stable per
// result class so automation can branch without parsing output.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.ShowRejection(err)
		os.Exit(m.ExitCodeFor(err))
	}
}

// deps bundles one invocation's wired collaborators.
type deps struct {
	pipeline domain.Pipeline
	events   adapter.EventLog
}

func (d *deps) close() {
	_ = d.events.Close()
}

// buildDeps wires the pipeline for the workspace root. Overridable in tests.
var buildDeps = func() (*deps, error) {
	root := chdirFlag

	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining workspace root: %w", err)
		}

		root = cwd
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	fs := adapter.NewLocalWorkspaceFS()
	stage := adapter.NewLocalStage(m.Path(root), fs, cfg.Exclude)

	var events adapter.EventLog

	if cfg.LogEnabled() {
		sessionID := ""

		if session, err := stage.Session(); err == nil && session != nil {
			sessionID = session.ID
		}

		events = adapter.NewEventLog(stage.ControlDir(), sessionID)
	} else {
		events = adapter.NewNopEventLog()
	}

	var checks adapter.CheckRunner
	if len(cfg.Checks) > 0 {
		checks = adapter.NewLocalCheckRunner(cfg.Checks)
	}

	promoter := adapter.NewLocalPromoter(fs, stage, cfg.Retention())
	pipeline := domain.NewPipeline(stage, promoter, domain.NewValidator(fs), checks, events)

	return &deps{pipeline: pipeline, events: events}, nil
}
