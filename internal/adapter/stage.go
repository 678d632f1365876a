package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	m "github.com/halfmoth/graft/internal/model"
)

// Control-directory layout under the real workspace root.
const (
	ControlDirName  = ".graft"
	stageDirName    = "stage"
	sessionFileName = "session.json"
	backupsDirName  = "backups"
	eventLogName    = "events.log"
)

// ResolvedOp is a fully materialized stage operation: the patch engine has
// already produced the final bytes, so applying a plan is nothing but writes
// and deletes.
type ResolvedOp struct {
	Kind    m.OpKind // OpWrite or OpDelete
	Path    m.Path
	Content []byte
	Hash    string
}

// Stage owns the staged workspace: the shadow tree under .graft/stage, the
// persisted session record and the touched-path set. Only promotion ever
// writes outside it.
type Stage interface {
	// Root returns the staging directory (whether or not it exists yet).
	Root() m.Path

	// RealRoot returns the real workspace root.
	RealRoot() m.Path

	// ControlDir returns the tool's control directory.
	ControlDir() m.Path

	// Exists reports whether a staging session is active.
	Exists() bool

	// Ensure creates the stage on first use: any stale stage from a prior
	// incomplete session is replaced wholesale by a fresh copy of the real
	// workspace. Returns whether a new stage was created.
	Ensure() (bool, error)

	// Session loads the persisted session record, or nil when absent.
	Session() (*m.Session, error)

	// ReadFile reads a staged file by workspace-relative path.
	ReadFile(rel m.Path) ([]byte, error)

	// Apply performs resolved operations against the staged tree, re-running
	// the symlink-escape check per write, and unions every touched path into
	// the persisted session record.
	Apply(ops []ResolvedOp) error

	// EffectiveRoot returns the stage root when a session is active, the
	// real root otherwise. Exposed for the verification and analysis
	// collaborators.
	EffectiveRoot() m.Path

	// Fingerprint digests the real workspace with the stage's exclusions,
	// for comparison against the session's creation fingerprint.
	Fingerprint() (string, error)

	// Reset deletes the staging directory and session record unconditionally.
	Reset() error
}

// LocalStage is the on-disk Stage implementation.
type LocalStage struct {
	realRoot m.Path
	fs       WorkspaceFS
	exclude  []string
}

// NewLocalStage constructs a Stage rooted at the real workspace root.
// exclude lists directory names never copied into the stage; the control
// directory is always excluded.
func NewLocalStage(realRoot m.Path, fs WorkspaceFS, exclude []string) *LocalStage {
	combined := make([]string, 0, len(exclude)+1)
	combined = append(combined, ControlDirName)
	combined = append(combined, exclude...)

	return &LocalStage{realRoot: realRoot, fs: fs, exclude: combined}
}

// Root returns the staging directory path.
func (s *LocalStage) Root() m.Path {
	return m.Path(filepath.Join(string(s.realRoot), ControlDirName, stageDirName))
}

// RealRoot returns the real workspace root.
func (s *LocalStage) RealRoot() m.Path {
	return s.realRoot
}

// ControlDir returns the control directory path.
func (s *LocalStage) ControlDir() m.Path {
	return m.Path(filepath.Join(string(s.realRoot), ControlDirName))
}

func (s *LocalStage) sessionPath() string {
	return filepath.Join(string(s.ControlDir()), sessionFileName)
}

// Exists reports whether both the staged tree and the session record exist.
func (s *LocalStage) Exists() bool {
	if _, err := s.fs.FileInfo(s.Root()); err != nil {
		return false
	}

	if _, err := s.fs.FileInfo(m.Path(s.sessionPath())); err != nil {
		return false
	}

	return true
}

// Ensure creates the stage lazily. A stage left behind by an incomplete
// prior session (tree without record, or record without tree) is rebuilt
// from the real workspace so the session always reasons about the real
// tree's latest state.
func (s *LocalStage) Ensure() (bool, error) {
	if s.Exists() {
		return false, nil
	}

	if err := s.fs.RemoveAll(s.Root()); err != nil {
		return false, fmt.Errorf("clearing stale stage: %w", err)
	}

	if err := s.fs.MkdirAll(s.ControlDir(), 0o750); err != nil {
		return false, fmt.Errorf("creating control dir: %w", err)
	}

	if err := s.fs.CopyDir(s.realRoot, s.Root(), s.exclude); err != nil {
		return false, fmt.Errorf("copying workspace into stage: %w", err)
	}

	fingerprint, err := s.fs.Fingerprint(s.realRoot, s.exclude)
	if err != nil {
		return false, fmt.Errorf("fingerprinting workspace: %w", err)
	}

	session := &m.Session{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Fingerprint: fingerprint,
		Touched:     map[string]m.Disposition{},
	}

	if err := s.saveSession(session); err != nil {
		return false, err
	}

	return true, nil
}

// Session loads the persisted session record.
func (s *LocalStage) Session() (*m.Session, error) {
	data, err := s.fs.ReadFile(m.Path(s.sessionPath()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading session record: %w", err)
	}

	var session m.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session record: %w", err)
	}

	return &session, nil
}

func (s *LocalStage) saveSession(session *m.Session) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	if err := s.fs.WriteFile(m.Path(s.sessionPath()), data, 0o600); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}

	return nil
}

// ReadFile reads a staged file by workspace-relative path.
func (s *LocalStage) ReadFile(rel m.Path) ([]byte, error) {
	return s.fs.ReadFile(m.Path(filepath.Join(string(s.Root()), filepath.FromSlash(string(rel)))))
}

// Apply writes resolved operations into the staged tree. The symlink-escape
// check re-runs for every individual write because an earlier op in the same
// plan could have created a link a later op would traverse.
func (s *LocalStage) Apply(ops []ResolvedOp) error {
	session, err := s.Session()
	if err != nil {
		return err
	}

	if session == nil {
		return fmt.Errorf("no active staging session")
	}

	root := s.Root()

	for _, op := range ops {
		inside, err := s.fs.ResolvesInside(root, op.Path)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", op.Path, err)
		}

		if !inside {
			return &m.ValidationError{
				Path:   op.Path,
				Rule:   "symlink-escape",
				Reason: "path resolves outside the staged workspace",
			}
		}

		target := m.Path(filepath.Join(string(root), filepath.FromSlash(string(op.Path))))

		switch op.Kind {
		case m.OpWrite:
			if err := s.fs.WriteFile(target, op.Content, 0o640); err != nil {
				return fmt.Errorf("writing staged %q: %w", op.Path, err)
			}

			session.Touch(op.Path, m.DispositionWritten)
		case m.OpDelete:
			if err := s.fs.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("deleting staged %q: %w", op.Path, err)
			}

			session.Touch(op.Path, m.DispositionDeleted)
		case m.OpPatch:
			return fmt.Errorf("unresolved patch op for %q reached the stage", op.Path)
		}
	}

	return s.saveSession(session)
}

// EffectiveRoot returns the root external checks should run against.
func (s *LocalStage) EffectiveRoot() m.Path {
	if s.Exists() {
		return s.Root()
	}

	return s.realRoot
}

// Fingerprint digests the current real workspace state.
func (s *LocalStage) Fingerprint() (string, error) {
	return s.fs.Fingerprint(s.realRoot, s.exclude)
}

// Reset deletes the staging directory and session record. Always available
// as an escape hatch.
func (s *LocalStage) Reset() error {
	if err := s.fs.RemoveAll(s.Root()); err != nil {
		return fmt.Errorf("removing stage: %w", err)
	}

	if err := s.fs.Remove(m.Path(s.sessionPath())); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session record: %w", err)
	}

	return nil
}
