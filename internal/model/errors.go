package model

import (
	"errors"
	"fmt"
)

// Process exit codes. Stable so external automation can branch on the
// result class without parsing text.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitParse      = 2
	ExitValidation = 3
	ExitPatch      = 4
	ExitPromote    = 5
)

// ParseError reports structural malformation of a payload. It carries the
// 1-based payload line where parsing failed.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
}

// ValidationError reports a manifest or path-safety violation. Terminal for
// the whole payload; nothing has been written.
type ValidationError struct {
	Path   Path
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("validation error (%s): %s", e.Rule, e.Reason)
	}

	return fmt.Sprintf("validation error (%s) for %q: %s", e.Rule, e.Path, e.Reason)
}

// PatchErrorKind distinguishes the patch failure classes.
type PatchErrorKind string

const (
	// PatchStaleBase means the target's current hash differs from the base hash.
	PatchStaleBase PatchErrorKind = "stale-base"
	// PatchNoMatch means the anchor was not found in the target.
	PatchNoMatch PatchErrorKind = "no-match"
	// PatchAmbiguousMatch means the anchor occurrence count differed from the expectation.
	PatchAmbiguousMatch PatchErrorKind = "ambiguous-match"
)

// Excerpt is a bounded slice of target content presented as a diagnostic.
// Advisory only; excerpts are never used to relax matching.
type Excerpt struct {
	Offset int
	Text   string
}

// PatchError reports a failed patch application. Terminal for the whole
// payload; zero bytes were written.
type PatchError struct {
	Path   Path
	Kind   PatchErrorKind
	Reason string
	// Excerpts holds a bounded set of nearby or matching regions to help
	// author a corrected anchor.
	Excerpts []Excerpt
	// Advice is the concrete next action for the operator.
	Advice string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch error (%s) for %q: %s", e.Kind, e.Path, e.Reason)
}

// PromoteError reports an I/O failure during promotion. When RolledBack is
// true the real workspace was restored to its pre-promotion state.
type PromoteError struct {
	Path       Path
	Reason     string
	RolledBack bool
	Err        error
}

func (e *PromoteError) Error() string {
	msg := fmt.Sprintf("promote error for %q: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	if e.RolledBack {
		msg += " (real workspace restored from backup)"
	}

	return msg
}

func (e *PromoteError) Unwrap() error {
	return e.Err
}

// ExitCodeFor maps an error to the process exit code for its result class.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return ExitParse
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitValidation
	}

	var patchErr *PatchError
	if errors.As(err, &patchErr) {
		return ExitPatch
	}

	var promoteErr *PromoteError
	if errors.As(err, &promoteErr) {
		return ExitPromote
	}

	return ExitFailure
}
