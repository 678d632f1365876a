package adapter

import (
	"os/exec"

	m "github.com/halfmoth/graft/internal/model"
)

// checkOutputLimit bounds the captured output per check command.
const checkOutputLimit = 16 * 1024

// CheckRunner runs the configured verification commands with their working
// directory set to the effective root (staged when a session is active, real
// otherwise). Results are advisory: the core records them but never gates
// promotion on them.
type CheckRunner interface {
	Run(root m.Path) []m.CheckResult
}

// LocalCheckRunner executes commands through the shell.
type LocalCheckRunner struct {
	commands []string
}

// NewLocalCheckRunner constructs a CheckRunner for the configured commands.
func NewLocalCheckRunner(commands []string) *LocalCheckRunner {
	return &LocalCheckRunner{commands: commands}
}

// Run executes every configured command in order. A non-zero exit marks the
// check failed; output is truncated to a fixed budget either way.
func (r *LocalCheckRunner) Run(root m.Path) []m.CheckResult {
	results := make([]m.CheckResult, 0, len(r.commands))

	for _, command := range r.commands {
		// #nosec G204 - commands come from the operator's own config file
		cmd := exec.Command("sh", "-c", command)
		cmd.Dir = string(root)

		output, err := cmd.CombinedOutput()
		if len(output) > checkOutputLimit {
			output = output[:checkOutputLimit]
		}

		results = append(results, m.CheckResult{
			Command: command,
			Passed:  err == nil,
			Output:  string(output),
		})
	}

	return results
}
