package model

import "time"

// CheckResult is the outcome of one configured verification command run
// against the effective root after an apply.
type CheckResult struct {
	Command string
	Passed  bool
	// Output is the combined stdout+stderr, truncated to a fixed budget.
	Output string
}

// ApplyReport summarizes a successful apply.
type ApplyReport struct {
	SessionID    string
	StageCreated bool
	Written      []Path
	Deleted      []Path
	Checks       []CheckResult
}

// TouchedEntry pairs a touched path with its disposition for display.
type TouchedEntry struct {
	Path        Path
	Disposition Disposition
}

// StatusReport describes the current staging session for display.
type StatusReport struct {
	StageActive bool
	StageRoot   Path
	SessionID   string
	CreatedAt   time.Time
	// Stale is true when the real workspace fingerprint no longer matches
	// the one captured at stage creation.
	Stale   bool
	Touched []TouchedEntry
	Backups int
}
