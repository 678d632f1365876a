package domain

import (
	"fmt"
	"os"

	"github.com/halfmoth/graft/internal/adapter"
	m "github.com/halfmoth/graft/internal/model"
)

// RuleDeleteTarget names the rejection for a DELETE aimed at a path that
// does not exist in the staged workspace.
const RuleDeleteTarget = "delete-target"

// Pipeline drives one ingestion invocation: parse, validate, resolve every
// operation to final bytes, then write the whole batch into the stage. A
// payload either applies completely or rejects before any byte is written.
type Pipeline interface {
	// Apply ingests one payload into the staged workspace.
	Apply(payload, source string) (*m.ApplyReport, error)

	// Promote transactionally copies touched paths into the real workspace.
	Promote() (*m.Session, error)

	// Reset deletes the stage and session state unconditionally.
	Reset() error

	// Status describes the current staging session.
	Status() (*m.StatusReport, error)

	// EffectiveRoot is the root external collaborators should operate on.
	EffectiveRoot() m.Path
}

type pipeline struct {
	stage     adapter.Stage
	promoter  adapter.Promoter
	validator Validator
	checks    adapter.CheckRunner
	events    adapter.EventLog
}

// NewPipeline wires the ingestion pipeline from its collaborators. checks
// may be nil when no verification commands are configured.
func NewPipeline(
	stage adapter.Stage,
	promoter adapter.Promoter,
	validator Validator,
	checks adapter.CheckRunner,
	events adapter.EventLog,
) Pipeline {
	return &pipeline{
		stage:     stage,
		promoter:  promoter,
		validator: validator,
		checks:    checks,
		events:    events,
	}
}

func (p *pipeline) Apply(payload, source string) (*m.ApplyReport, error) {
	p.events.ApplyStarted(source)

	blocks, err := Parse(payload)
	if err != nil {
		p.events.ApplyRejected("parse", err)

		return nil, err
	}

	// Validation runs before the stage is even created: a payload that fails
	// any manifest or path-safety rule causes zero filesystem activity.
	plan, err := p.validator.Validate(blocks, p.stage.Root(), p.stage.RealRoot())
	if err != nil {
		p.events.ApplyRejected("validation", err)

		return nil, err
	}

	created, err := p.stage.Ensure()
	if err != nil {
		return nil, fmt.Errorf("preparing stage: %w", err)
	}

	session, err := p.stage.Session()
	if err != nil {
		return nil, err
	}

	if created {
		p.events.StageCreated(session.ID, session.Fingerprint)
	}

	resolved, err := p.resolve(plan)
	if err != nil {
		p.events.ApplyRejected(rejectionClass(err), err)

		return nil, err
	}

	if err := p.stage.Apply(resolved); err != nil {
		p.events.ApplyRejected("stage", err)

		return nil, err
	}

	report := &m.ApplyReport{SessionID: session.ID, StageCreated: created}

	for _, op := range resolved {
		switch op.Kind {
		case m.OpWrite:
			p.events.FileWritten(op.Path, op.Hash, len(op.Content))
			report.Written = append(report.Written, op.Path)
		case m.OpDelete:
			p.events.FileDeleted(op.Path)
			report.Deleted = append(report.Deleted, op.Path)
		case m.OpPatch:
			// Patches were resolved to writes before the stage saw them.
		}
	}

	p.events.ApplySucceeded(len(report.Written), len(report.Deleted))

	if p.checks != nil {
		report.Checks = p.checks.Run(p.stage.EffectiveRoot())
	}

	return report, nil
}

// resolve turns every plan operation into final bytes before anything is
// written. A patch failure here rejects the whole payload with the stage
// untouched.
func (p *pipeline) resolve(plan *m.ExecutionPlan) ([]adapter.ResolvedOp, error) {
	resolved := make([]adapter.ResolvedOp, 0, len(plan.Ops))

	for _, op := range plan.Ops {
		switch op.Kind {
		case m.OpWrite:
			resolved = append(resolved, adapter.ResolvedOp{
				Kind:    m.OpWrite,
				Path:    op.Path,
				Content: op.Content,
				Hash:    HashContent(op.Content),
			})
		case m.OpPatch:
			current, err := p.stage.ReadFile(op.Path)
			if err != nil {
				if os.IsNotExist(err) {
					return nil, &m.PatchError{
						Path:   op.Path,
						Kind:   m.PatchStaleBase,
						Reason: "target file does not exist in the staged workspace",
						Advice: "send a full-file replacement instead",
					}
				}

				return nil, fmt.Errorf("reading staged %q: %w", op.Path, err)
			}

			next, err := ApplyPatch(current, op.Patch, op.Path)
			if err != nil {
				return nil, err
			}

			resolved = append(resolved, adapter.ResolvedOp{
				Kind:    m.OpWrite,
				Path:    op.Path,
				Content: next,
				Hash:    HashContent(next),
			})
		case m.OpDelete:
			if _, err := p.stage.ReadFile(op.Path); err != nil {
				if os.IsNotExist(err) {
					return nil, &m.ValidationError{
						Path:   op.Path,
						Rule:   RuleDeleteTarget,
						Reason: "DELETE targets a file that does not exist in the staged workspace",
					}
				}

				return nil, fmt.Errorf("reading staged %q: %w", op.Path, err)
			}

			resolved = append(resolved, adapter.ResolvedOp{Kind: m.OpDelete, Path: op.Path})
		}
	}

	return resolved, nil
}

func (p *pipeline) Promote() (*m.Session, error) {
	session, err := p.stage.Session()
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, fmt.Errorf("nothing to promote: no active staging session")
	}

	p.events.PromoteStarted(len(session.Touched))

	promoted, err := p.promoter.Promote()
	if err != nil {
		p.events.PromoteFailed(err)

		return nil, err
	}

	p.events.PromoteSucceeded(len(promoted.Touched))

	return promoted, nil
}

func (p *pipeline) Reset() error {
	if err := p.stage.Reset(); err != nil {
		return err
	}

	p.events.Reset()

	return nil
}

func (p *pipeline) Status() (*m.StatusReport, error) {
	backups, err := p.promoter.BackupCount()
	if err != nil {
		return nil, err
	}

	report := &m.StatusReport{
		StageActive: p.stage.Exists(),
		StageRoot:   p.stage.Root(),
		Backups:     backups,
	}

	if !report.StageActive {
		return report, nil
	}

	session, err := p.stage.Session()
	if err != nil {
		return nil, err
	}

	if session == nil {
		// The record vanished between the existence check and the read;
		// report it as no active session.
		report.StageActive = false

		return report, nil
	}

	report.SessionID = session.ID
	report.CreatedAt = session.CreatedAt

	current, err := p.stage.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprinting workspace: %w", err)
	}

	report.Stale = current != session.Fingerprint

	for _, path := range session.TouchedPaths() {
		report.Touched = append(report.Touched, m.TouchedEntry{
			Path:        path,
			Disposition: session.Touched[string(path)],
		})
	}

	return report, nil
}

func (p *pipeline) EffectiveRoot() m.Path {
	return p.stage.EffectiveRoot()
}

// rejectionClass names the audit-log class for a resolution failure.
func rejectionClass(err error) string {
	switch m.ExitCodeFor(err) {
	case m.ExitPatch:
		return "patch"
	case m.ExitValidation:
		return "validation"
	default:
		return "internal"
	}
}
