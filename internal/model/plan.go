package model

// OpKind represents the category of a planned file operation.
type OpKind string

const (
	// OpWrite replaces or creates a file with literal content.
	OpWrite OpKind = "write"
	// OpPatch applies a context-anchored edit to an existing file.
	OpPatch OpKind = "patch"
	// OpDelete removes a file.
	OpDelete OpKind = "delete"
)

// FileOp is one concrete operation of an execution plan.
type FileOp struct {
	Kind OpKind
	Path Path
	// Content holds the replacement bytes for OpWrite.
	Content []byte
	// Patch holds the edit for OpPatch.
	Patch *PatchSpec
}

// ExecutionPlan is the validated, ordered list of file operations derived
// from a payload. Producing one implies every manifest and path-safety rule
// passed; nothing has been written yet.
type ExecutionPlan struct {
	Manifest []Path
	Ops      []FileOp
}
