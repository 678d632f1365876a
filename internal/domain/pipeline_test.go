package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halfmoth/graft/internal/adapter"
	m "github.com/halfmoth/graft/internal/model"
)

type pipelineFixture struct {
	root     string
	stage    adapter.Stage
	pipeline Pipeline
}

func newPipelineFixture(t *testing.T, checks adapter.CheckRunner) *pipelineFixture {
	t.Helper()

	root := t.TempDir()
	fs := adapter.NewLocalWorkspaceFS()
	stage := adapter.NewLocalStage(m.Path(root), fs, []string{".git"})
	promoter := adapter.NewLocalPromoter(fs, stage, 5)

	return &pipelineFixture{
		root:     root,
		stage:    stage,
		pipeline: NewPipeline(stage, promoter, NewValidator(fs), checks, adapter.NewNopEventLog()),
	}
}

func (f *pipelineFixture) writeReal(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func (f *pipelineFixture) readReal(t *testing.T, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(t, err)

	return string(data)
}

func (f *pipelineFixture) readStaged(t *testing.T, rel string) string {
	t.Helper()

	data, err := f.stage.ReadFile(m.Path(rel))
	require.NoError(t, err)

	return string(data)
}

func filePayload(path, content string) string {
	return payload(
		"%%%GRAFT MANIFEST",
		path,
		"%%%END MANIFEST",
		"%%%GRAFT FILE "+path,
		content,
		"%%%END FILE "+path,
	)
}

func patchPayload(path, baseHash, left, old, right, repl string) string {
	return payload(
		"%%%GRAFT MANIFEST",
		path,
		"%%%END MANIFEST",
		"%%%GRAFT PATCH "+path,
		"%%BASE_SHA256 "+baseHash,
		"%%LEFT_CTX",
		left,
		"%%OLD",
		old,
		"%%RIGHT_CTX",
		right,
		"%%NEW",
		repl,
		"%%%END PATCH "+path,
	)
}

func TestPipeline_ApplyStagesWithoutTouchingReal(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, "existing.txt", "untouched\n")

	report, err := f.pipeline.Apply(filePayload("a.txt", "hello"), "test")
	require.NoError(t, err)

	assert.True(t, report.StageCreated)
	assert.NotEmpty(t, report.SessionID)
	assert.Equal(t, []m.Path{"a.txt"}, report.Written)

	assert.Equal(t, "hello\n", f.readStaged(t, "a.txt"))
	assert.Equal(t, "untouched\n", f.readStaged(t, "existing.txt"))

	_, err = os.Stat(filepath.Join(f.root, "a.txt"))
	assert.True(t, os.IsNotExist(err), "real workspace must not receive the file before promotion")
}

func TestPipeline_ApplyPatchAgainstStagedCopy(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, "x.txt", "foo bar baz")

	hash := HashContent([]byte("foo bar baz"))

	text := patchPayload("x.txt", hash, "foo ", "bar", " baz", "qux")

	report, err := f.pipeline.Apply(text, "test")
	require.NoError(t, err)
	require.Equal(t, []m.Path{"x.txt"}, report.Written)

	assert.Equal(t, "foo qux baz", f.readStaged(t, "x.txt"))
	assert.Equal(t, "foo bar baz", f.readReal(t, "x.txt"), "real file stays unchanged until promotion")
}

func TestPipeline_UndeclaredPathRejectedBeforeAnyWrite(t *testing.T) {
	f := newPipelineFixture(t, nil)

	text := payload(
		"%%%GRAFT MANIFEST",
		"a.txt",
		"%%%END MANIFEST",
		"%%%GRAFT FILE a.txt",
		"hello",
		"%%%END FILE a.txt",
		"%%%GRAFT FILE b.txt",
		"sneaky",
		"%%%END FILE b.txt",
	)

	_, err := f.pipeline.Apply(text, "test")
	require.Error(t, err)
	assert.Equal(t, m.ExitValidation, m.ExitCodeFor(err))

	_, statErr := os.Stat(filepath.Join(f.root, adapter.ControlDirName))
	assert.True(t, os.IsNotExist(statErr), "a rejected payload must not create the stage")
}

func TestPipeline_TraversalRejected(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Apply(filePayload("../../etc/passwd", "owned"), "test")
	require.Error(t, err)

	var validationErr *m.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, RulePathSafety, validationErr.Rule)
}

func TestPipeline_ControlDirectoryPathsRejected(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, ".graft/events.log", "prior audit record\n")

	_, err := f.pipeline.Apply(filePayload(".graft/events.log", "TAMPERED"), "test")
	require.Error(t, err)

	var validationErr *m.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, RulePathSafety, validationErr.Rule)

	assert.Equal(t, "prior audit record\n", f.readReal(t, ".graft/events.log"),
		"the audit trail must be unreachable from a payload")

	_, statErr := os.Stat(filepath.Join(f.root, adapter.ControlDirName, "stage"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipeline_FailedPatchRejectsWholePayload(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, "x.txt", "foo bar baz")

	text := payload(
		"%%%GRAFT MANIFEST",
		"a.txt",
		"x.txt",
		"%%%END MANIFEST",
		"%%%GRAFT FILE a.txt",
		"hello",
		"%%%END FILE a.txt",
		"%%%GRAFT PATCH x.txt",
		"%%BASE_SHA256 "+testHash,
		"%%OLD",
		"bar",
		"%%NEW",
		"qux",
		"%%%END PATCH x.txt",
	)

	_, err := f.pipeline.Apply(text, "test")
	require.Error(t, err)
	assert.Equal(t, m.ExitPatch, m.ExitCodeFor(err))

	// The other operation of the same payload must not have landed either.
	_, readErr := f.stage.ReadFile("a.txt")
	assert.True(t, os.IsNotExist(readErr), "sibling write leaked into the stage")

	assert.Equal(t, "foo bar baz", f.readStaged(t, "x.txt"))
}

func TestPipeline_PatchTargetMissing(t *testing.T) {
	f := newPipelineFixture(t, nil)

	text := patchPayload("missing.txt", testHash, "foo ", "bar", " baz", "qux")

	_, err := f.pipeline.Apply(text, "test")

	var patchErr *m.PatchError
	require.True(t, errors.As(err, &patchErr))
	assert.Equal(t, m.PatchStaleBase, patchErr.Kind)
}

func TestPipeline_DeleteFlow(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, "gone.txt", "old stuff\n")

	text := payload(
		"%%%GRAFT MANIFEST",
		"gone.txt",
		"%%%END MANIFEST",
		"%%%GRAFT DELETE gone.txt",
		"%%%END DELETE gone.txt",
	)

	report, err := f.pipeline.Apply(text, "test")
	require.NoError(t, err)
	assert.Equal(t, []m.Path{"gone.txt"}, report.Deleted)

	_, readErr := f.stage.ReadFile("gone.txt")
	assert.True(t, os.IsNotExist(readErr))
	assert.Equal(t, "old stuff\n", f.readReal(t, "gone.txt"))

	session, err := f.pipeline.Promote()
	require.NoError(t, err)
	assert.Equal(t, m.DispositionDeleted, session.Touched["gone.txt"])

	_, statErr := os.Stat(filepath.Join(f.root, "gone.txt"))
	assert.True(t, os.IsNotExist(statErr), "promotion must remove the real file")
}

func TestPipeline_DeleteMissingTarget(t *testing.T) {
	f := newPipelineFixture(t, nil)

	text := payload(
		"%%%GRAFT MANIFEST",
		"nope.txt",
		"%%%END MANIFEST",
		"%%%GRAFT DELETE nope.txt",
		"%%%END DELETE nope.txt",
	)

	_, err := f.pipeline.Apply(text, "test")

	var validationErr *m.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, RuleDeleteTarget, validationErr.Rule)
}

func TestPipeline_PromoteThenStatus(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, "x.txt", "before\n")

	hash := HashContent([]byte("before\n"))
	_, err := f.pipeline.Apply(patchPayload("x.txt", hash, "", "before", "", "after"), "test")
	require.NoError(t, err)

	session, err := f.pipeline.Promote()
	require.NoError(t, err)
	require.Len(t, session.Touched, 1)

	assert.Equal(t, "after\n", f.readReal(t, "x.txt"))

	report, err := f.pipeline.Status()
	require.NoError(t, err)
	assert.False(t, report.StageActive, "promotion clears the stage")
	assert.Equal(t, 1, report.Backups)
}

func TestPipeline_PromoteWithoutSession(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Promote()
	require.Error(t, err)
	assert.Equal(t, m.ExitFailure, m.ExitCodeFor(err))
}

func TestPipeline_StatusReportsStaleness(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.writeReal(t, "x.txt", "original\n")

	_, err := f.pipeline.Apply(filePayload("a.txt", "hello"), "test")
	require.NoError(t, err)

	report, err := f.pipeline.Status()
	require.NoError(t, err)
	assert.True(t, report.StageActive)
	assert.False(t, report.Stale)
	require.Len(t, report.Touched, 1)
	assert.Equal(t, m.Path("a.txt"), report.Touched[0].Path)

	f.writeReal(t, "x.txt", "changed underneath the session\n")

	report, err = f.pipeline.Status()
	require.NoError(t, err)
	assert.True(t, report.Stale)
}

// vanishedSessionStage reports an active stage whose session record has
// disappeared out from under it, the race a concurrent reset produces.
type vanishedSessionStage struct {
	adapter.Stage
}

func (vanishedSessionStage) Exists() bool                 { return true }
func (vanishedSessionStage) Root() m.Path                 { return "stage" }
func (vanishedSessionStage) Session() (*m.Session, error) { return nil, nil }

type zeroBackupPromoter struct{}

func (zeroBackupPromoter) Promote() (*m.Session, error) { return nil, errors.New("no session") }
func (zeroBackupPromoter) BackupCount() (int, error)    { return 0, nil }

func TestPipeline_StatusSurvivesVanishedSessionRecord(t *testing.T) {
	p := NewPipeline(
		vanishedSessionStage{},
		zeroBackupPromoter{},
		NewValidator(adapter.NewLocalWorkspaceFS()),
		nil,
		adapter.NewNopEventLog(),
	)

	report, err := p.Status()
	require.NoError(t, err)
	assert.False(t, report.StageActive)
	assert.Empty(t, report.SessionID)
}

func TestPipeline_ResetDiscardsSession(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Apply(filePayload("a.txt", "hello"), "test")
	require.NoError(t, err)
	require.True(t, f.stage.Exists())

	require.NoError(t, f.pipeline.Reset())
	assert.False(t, f.stage.Exists())
}

func TestPipeline_EffectiveRoot(t *testing.T) {
	f := newPipelineFixture(t, nil)

	assert.Equal(t, m.Path(f.root), f.pipeline.EffectiveRoot())

	_, err := f.pipeline.Apply(filePayload("a.txt", "hello"), "test")
	require.NoError(t, err)

	assert.Equal(t, f.stage.Root(), f.pipeline.EffectiveRoot())
}

func TestPipeline_ChecksRunAgainstStage(t *testing.T) {
	checks := adapter.NewLocalCheckRunner([]string{"test -f a.txt", "false"})

	f := newPipelineFixture(t, checks)

	report, err := f.pipeline.Apply(filePayload("a.txt", "hello"), "test")
	require.NoError(t, err)

	require.Len(t, report.Checks, 2)
	assert.True(t, report.Checks[0].Passed, "staged file must be visible to the check")
	assert.False(t, report.Checks[1].Passed)
}
