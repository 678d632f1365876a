// Package model defines the data structures for payload ingestion.
package model

// Path represents a file system path, relative to the workspace root unless
// stated otherwise.
type Path string

// BlockKind represents the category of a payload block.
type BlockKind string

const (
	// BlockPlan is free text describing the intent of the payload. Never written to disk.
	BlockPlan BlockKind = "PLAN"
	// BlockManifest declares the set of paths the payload intends to touch.
	BlockManifest BlockKind = "MANIFEST"
	// BlockFile carries a full replacement for a single file.
	BlockFile BlockKind = "FILE"
	// BlockPatch carries a context-anchored edit for a single file.
	BlockPatch BlockKind = "PATCH"
	// BlockDelete requests removal of a single file.
	BlockDelete BlockKind = "DELETE"
	// BlockUnknown is any unrecognized block kind. Always rejected, never writable.
	BlockUnknown BlockKind = "UNKNOWN"
)

// ReservedNames lists keywords that may never be used as a block path.
var ReservedNames = map[string]struct{}{
	"PLAN":     {},
	"MANIFEST": {},
	"FILE":     {},
	"PATCH":    {},
	"DELETE":   {},
	"":         {},
}

// Block is one parsed unit of a payload. Kind decides which fields are
// meaningful; consumers must switch on Kind exhaustively and treat
// BlockUnknown (or any unexpected value) as a rejection.
type Block struct {
	Kind BlockKind
	// Line is the 1-based payload line of the opening marker, for diagnostics.
	Line int

	// Path is set for FILE, PATCH and DELETE blocks.
	Path Path
	// Text is set for PLAN blocks.
	Text string
	// Manifest is set for MANIFEST blocks.
	Manifest []Path
	// Content is set for FILE blocks.
	Content []byte
	// Patch is set for PATCH blocks.
	Patch *PatchSpec
}

// PatchSpec describes a context-anchored edit. The anchor is the literal
// concatenation LeftCtx+Old+RightCtx; Old is the sub-span replaced by New.
type PatchSpec struct {
	// BaseSHA256 is the lowercase hex SHA-256 of the target file at
	// patch-authoring time. Equality oracle only.
	BaseSHA256 string
	// MaxMatches is the number of times the anchor is expected to occur
	// in the target. Defaults to 1.
	MaxMatches int

	LeftCtx  []byte
	Old      []byte
	RightCtx []byte
	New      []byte
}

// Anchor returns LeftCtx+Old+RightCtx as a single byte sequence.
func (p *PatchSpec) Anchor() []byte {
	anchor := make([]byte, 0, len(p.LeftCtx)+len(p.Old)+len(p.RightCtx))
	anchor = append(anchor, p.LeftCtx...)
	anchor = append(anchor, p.Old...)
	anchor = append(anchor, p.RightCtx...)

	return anchor
}
