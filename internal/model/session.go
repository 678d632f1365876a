package model

import (
	"sort"
	"time"
)

// Disposition records how a staged path was last touched.
type Disposition string

const (
	// DispositionWritten marks a path whose staged content should replace the real file.
	DispositionWritten Disposition = "written"
	// DispositionDeleted marks a path whose real file should be removed on promotion.
	DispositionDeleted Disposition = "deleted"
)

// Session is the persisted record of one staging session. It lives on disk
// between invocations; no in-memory state survives a process.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	// Fingerprint is a content digest of the real workspace at stage
	// creation. Advisory staleness signal only; base hashes gate patches.
	Fingerprint string `json:"fingerprint"`
	// Touched maps slash-separated relative paths to their disposition,
	// accumulated across every apply since the last promotion.
	Touched map[string]Disposition `json:"touched"`
}

// Touch unions a path into the touched set.
func (s *Session) Touch(p Path, d Disposition) {
	if s.Touched == nil {
		s.Touched = make(map[string]Disposition)
	}

	s.Touched[string(p)] = d
}

// TouchedPaths returns the touched set in sorted order.
func (s *Session) TouchedPaths() []Path {
	paths := make([]Path, 0, len(s.Touched))
	for p := range s.Touched {
		paths = append(paths, Path(p))
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	return paths
}
