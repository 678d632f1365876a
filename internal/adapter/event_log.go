package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	m "github.com/halfmoth/graft/internal/model"
)

// Audit event names. One JSONL record per event in .graft/events.log; the
// log is written by the core and consumed only by external tools.
const (
	EventStageCreated     = "stage_created"
	EventApplyStarted     = "apply_started"
	EventApplyRejected    = "apply_rejected"
	EventApplySucceeded   = "apply_succeeded"
	EventFileWritten      = "file_written"
	EventFileDeleted      = "file_deleted"
	EventPromoteStarted   = "promote_started"
	EventPromoteFailed    = "promote_failed"
	EventPromoteSucceeded = "promote_succeeded"
	EventReset            = "reset"
)

// EventLog is the append-only structured audit trail.
type EventLog interface {
	StageCreated(sessionID, fingerprint string)
	ApplyStarted(source string)
	ApplyRejected(class string, err error)
	ApplySucceeded(written, deleted int)
	FileWritten(path m.Path, hash string, size int)
	FileDeleted(path m.Path)
	PromoteStarted(paths int)
	PromoteFailed(err error)
	PromoteSucceeded(paths int)
	Reset()
	Close() error
}

type zapEventLog struct {
	controlDir m.Path
	session    string

	once    sync.Once
	openErr error
	logger  *zap.Logger
	file    *os.File
}

// NewEventLog returns the append-only JSONL event log under the control
// directory. The file is opened on the first recorded event, so an
// invocation that emits nothing leaves no trace on disk. Every record
// carries the session id when one is active.
func NewEventLog(controlDir m.Path, sessionID string) EventLog {
	return &zapEventLog{controlDir: controlDir, session: sessionID}
}

// NewNopEventLog returns an EventLog that records nothing. Used when logging
// is disabled and in tests.
func NewNopEventLog() EventLog {
	return &zapEventLog{}
}

// log opens the underlying file on first use. An unopenable log degrades to
// a no-op; the open failure is surfaced by Close.
func (l *zapEventLog) log() *zap.Logger {
	l.once.Do(func() {
		l.logger = zap.NewNop()

		if l.controlDir == "" {
			return
		}

		if err := os.MkdirAll(string(l.controlDir), 0o750); err != nil {
			l.openErr = fmt.Errorf("creating control dir: %w", err)

			return
		}

		path := filepath.Join(string(l.controlDir), eventLogName)

		// #nosec G304 - path is derived from the workspace control dir
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			l.openErr = fmt.Errorf("opening event log: %w", err)

			return
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.TimeKey = "ts"
		encoderCfg.MessageKey = "event"
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zap.InfoLevel)

		logger := zap.New(core)
		if l.session != "" {
			logger = logger.With(zap.String("session", l.session))
		}

		l.logger = logger
		l.file = file
	})

	return l.logger
}

func (l *zapEventLog) StageCreated(sessionID, fingerprint string) {
	l.log().Info(EventStageCreated,
		zap.String("session", sessionID),
		zap.String("fingerprint", fingerprint))
}

func (l *zapEventLog) ApplyStarted(source string) {
	l.log().Info(EventApplyStarted, zap.String("source", source))
}

func (l *zapEventLog) ApplyRejected(class string, err error) {
	l.log().Info(EventApplyRejected, zap.String("class", class), zap.Error(err))
}

func (l *zapEventLog) ApplySucceeded(written, deleted int) {
	l.log().Info(EventApplySucceeded, zap.Int("written", written), zap.Int("deleted", deleted))
}

func (l *zapEventLog) FileWritten(path m.Path, hash string, size int) {
	l.log().Info(EventFileWritten,
		zap.String("path", string(path)),
		zap.String("sha256", hash),
		zap.Int("size", size))
}

func (l *zapEventLog) FileDeleted(path m.Path) {
	l.log().Info(EventFileDeleted, zap.String("path", string(path)))
}

func (l *zapEventLog) PromoteStarted(paths int) {
	l.log().Info(EventPromoteStarted, zap.Int("paths", paths))
}

func (l *zapEventLog) PromoteFailed(err error) {
	l.log().Info(EventPromoteFailed, zap.Error(err))
}

func (l *zapEventLog) PromoteSucceeded(paths int) {
	l.log().Info(EventPromoteSucceeded, zap.Int("paths", paths))
}

func (l *zapEventLog) Reset() {
	l.log().Info(EventReset)
}

func (l *zapEventLog) Close() error {
	if l.logger != nil {
		_ = l.logger.Sync()
	}

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return err
		}
	}

	return l.openErr
}
