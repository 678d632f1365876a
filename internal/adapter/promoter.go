package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	m "github.com/halfmoth/graft/internal/model"
)

const backupTimeFormat = "20060102-150405.000000000"

// Promoter copies touched paths from the staged workspace into the real
// workspace transactionally. It is the only component that writes outside
// the control directory.
type Promoter interface {
	// Promote applies the staged session to the real workspace. On any
	// failure partway it restores every already-modified real file from the
	// just-created backups and reports a PromoteError; the real workspace is
	// never left in a mixed state. On success the stage is cleared and old
	// backups beyond the retention count are pruned.
	Promote() (*m.Session, error)

	// BackupCount reports how many promotion backups are retained.
	BackupCount() (int, error)
}

// LocalPromoter is the on-disk Promoter implementation.
type LocalPromoter struct {
	fs        WorkspaceFS
	stage     Stage
	retention int
	now       func() time.Time
}

// NewLocalPromoter constructs a Promoter. retention is the number of backup
// directories kept after successful promotions.
func NewLocalPromoter(fs WorkspaceFS, stage Stage, retention int) *LocalPromoter {
	return &LocalPromoter{fs: fs, stage: stage, retention: retention, now: time.Now}
}

func (p *LocalPromoter) backupsDir() string {
	return filepath.Join(string(p.stage.ControlDir()), backupsDirName)
}

// Promote implements the backup-then-write-then-rollback transaction.
func (p *LocalPromoter) Promote() (*m.Session, error) {
	session, err := p.stage.Session()
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, fmt.Errorf("nothing to promote: no active staging session")
	}

	touched := session.TouchedPaths()
	realRoot := string(p.stage.RealRoot())
	stageRoot := string(p.stage.Root())

	backupDir := filepath.Join(p.backupsDir(), p.now().UTC().Format(backupTimeFormat))

	// Phase 1: back up every real file about to be overwritten or deleted.
	existed := make(map[m.Path]bool, len(touched))

	for _, rel := range touched {
		realPath := filepath.Join(realRoot, filepath.FromSlash(string(rel)))

		if _, err := os.Lstat(realPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, &m.PromoteError{Path: rel, Reason: "inspecting real file for backup", Err: err}
		}

		existed[rel] = true

		backupPath := filepath.Join(backupDir, filepath.FromSlash(string(rel)))
		if err := p.fs.CopyFile(m.Path(realPath), m.Path(backupPath)); err != nil {
			return nil, &m.PromoteError{Path: rel, Reason: "backing up real file", Err: err}
		}
	}

	// Phase 2: copy staged content over the real tree, or delete.
	var done []m.Path

	for _, rel := range touched {
		realPath := m.Path(filepath.Join(realRoot, filepath.FromSlash(string(rel))))

		var opErr error

		switch session.Touched[string(rel)] {
		case m.DispositionWritten:
			stagePath := m.Path(filepath.Join(stageRoot, filepath.FromSlash(string(rel))))
			opErr = p.fs.CopyFile(stagePath, realPath)
		case m.DispositionDeleted:
			if err := p.fs.Remove(realPath); err != nil && !os.IsNotExist(err) {
				opErr = err
			}
		}

		if opErr != nil {
			p.rollback(append(done, rel), existed, backupDir)

			return nil, &m.PromoteError{
				Path:       rel,
				Reason:     "promoting touched path",
				RolledBack: true,
				Err:        opErr,
			}
		}

		done = append(done, rel)
	}

	if err := p.stage.Reset(); err != nil {
		return nil, fmt.Errorf("clearing stage after promotion: %w", err)
	}

	if err := p.prune(); err != nil {
		return nil, fmt.Errorf("pruning old backups: %w", err)
	}

	return session, nil
}

// rollback restores every already-modified path from the just-created
// backups, returning the real workspace to its pre-promotion state.
func (p *LocalPromoter) rollback(paths []m.Path, existed map[m.Path]bool, backupDir string) {
	realRoot := string(p.stage.RealRoot())

	for _, rel := range paths {
		realPath := m.Path(filepath.Join(realRoot, filepath.FromSlash(string(rel))))

		if existed[rel] {
			backupPath := m.Path(filepath.Join(backupDir, filepath.FromSlash(string(rel))))
			// Restore failures leave the backup in place for manual recovery.
			_ = p.fs.CopyFile(backupPath, realPath)

			continue
		}

		_ = p.fs.Remove(realPath)
	}
}

// prune deletes backup directories beyond the retention count, oldest first.
func (p *LocalPromoter) prune() error {
	entries, err := os.ReadDir(p.backupsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	var names []string

	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	if len(names) <= p.retention {
		return nil
	}

	// Timestamp names sort chronologically.
	sort.Strings(names)

	for _, name := range names[:len(names)-p.retention] {
		if err := p.fs.RemoveAll(m.Path(filepath.Join(p.backupsDir(), name))); err != nil {
			return err
		}
	}

	return nil
}

// BackupCount reports the number of retained backup directories.
func (p *LocalPromoter) BackupCount() (int, error) {
	entries, err := os.ReadDir(p.backupsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	count := 0

	for _, entry := range entries {
		if entry.IsDir() {
			count++
		}
	}

	return count, nil
}
