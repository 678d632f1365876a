package domain

import (
	"fmt"
	gopath "path"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/halfmoth/graft/internal/adapter"
	m "github.com/halfmoth/graft/internal/model"
)

// Validation rule names, surfaced in ValidationError so rejections can name
// the specific rule violated.
const (
	RuleManifest      = "manifest"
	RuleDuplicate     = "duplicate"
	RulePathSafety    = "path-safety"
	RuleSymlinkEscape = "symlink-escape"
	RuleEmptyFile     = "empty-file"
	RuleUnknownBlock  = "unknown-block"
)

// Validator cross-checks parsed blocks against the manifest and the path
// safety rules, producing an ExecutionPlan or a typed rejection with zero
// side effects. Batch validation: every check runs before any write.
type Validator interface {
	Validate(blocks []m.Block, stageRoot, realRoot m.Path) (*m.ExecutionPlan, error)
}

type validator struct {
	fs adapter.WorkspaceFS
}

// NewValidator constructs a Validator backed by the provided filesystem
// adapter (needed for the symlink-escape resolution).
func NewValidator(fs adapter.WorkspaceFS) Validator {
	return &validator{fs: fs}
}

// Validate runs every check in order; the first violation rejects the whole
// payload.
func (v *validator) Validate(blocks []m.Block, stageRoot, realRoot m.Path) (*m.ExecutionPlan, error) {
	manifest, ops, err := v.collect(blocks)
	if err != nil {
		return nil, err
	}

	if err := v.crossCheck(manifest, ops); err != nil {
		return nil, err
	}

	for _, op := range ops {
		for _, root := range []m.Path{stageRoot, realRoot} {
			inside, err := v.fs.ResolvesInside(root, op.Path)
			if err != nil {
				return nil, fmt.Errorf("resolving %q: %w", op.Path, err)
			}

			if !inside {
				return nil, &m.ValidationError{
					Path:   op.Path,
					Rule:   RuleSymlinkEscape,
					Reason: "a path prefix resolves outside the workspace root",
				}
			}
		}
	}

	return &m.ExecutionPlan{Manifest: manifest, Ops: ops}, nil
}

// collect gathers the manifest and the content operations, applying the
// per-path rules as it goes.
func (v *validator) collect(blocks []m.Block) ([]m.Path, []m.FileOp, error) {
	var (
		manifest     []m.Path
		ops          []m.FileOp
		haveManifest bool
	)

	for _, block := range blocks {
		switch block.Kind {
		case m.BlockPlan:
			// Free text, never written.
		case m.BlockManifest:
			if haveManifest {
				return nil, nil, &m.ValidationError{Rule: RuleManifest, Reason: "payload declares more than one manifest"}
			}

			haveManifest = true

			for _, p := range block.Manifest {
				if err := checkPathSafety(p); err != nil {
					return nil, nil, err
				}

				manifest = append(manifest, p)
			}
		case m.BlockFile:
			if err := checkPathSafety(block.Path); err != nil {
				return nil, nil, err
			}

			if len(block.Content) == 0 {
				return nil, nil, &m.ValidationError{
					Path:   block.Path,
					Rule:   RuleEmptyFile,
					Reason: "FILE block has empty content; zero-byte files are a protocol error",
				}
			}

			ops = append(ops, m.FileOp{Kind: m.OpWrite, Path: block.Path, Content: block.Content})
		case m.BlockPatch:
			if err := checkPathSafety(block.Path); err != nil {
				return nil, nil, err
			}

			ops = append(ops, m.FileOp{Kind: m.OpPatch, Path: block.Path, Patch: block.Patch})
		case m.BlockDelete:
			if err := checkPathSafety(block.Path); err != nil {
				return nil, nil, err
			}

			ops = append(ops, m.FileOp{Kind: m.OpDelete, Path: block.Path})
		case m.BlockUnknown:
			return nil, nil, &m.ValidationError{Rule: RuleUnknownBlock, Reason: "payload contains an unknown block kind"}
		default:
			return nil, nil, &m.ValidationError{Rule: RuleUnknownBlock, Reason: fmt.Sprintf("unhandled block kind %q", block.Kind)}
		}
	}

	if !haveManifest {
		return nil, nil, &m.ValidationError{Rule: RuleManifest, Reason: "payload declares no manifest"}
	}

	return manifest, ops, nil
}

// crossCheck enforces the bidirectional manifest invariant and rejects
// duplicate paths.
func (v *validator) crossCheck(manifest []m.Path, ops []m.FileOp) error {
	declared := make(map[m.Path]bool, len(manifest))

	for _, p := range manifest {
		if declared[p] {
			return &m.ValidationError{Path: p, Rule: RuleDuplicate, Reason: "path declared twice in manifest"}
		}

		declared[p] = true
	}

	provided := make(map[m.Path]bool, len(ops))

	for _, op := range ops {
		if provided[op.Path] {
			return &m.ValidationError{Path: op.Path, Rule: RuleDuplicate, Reason: "multiple content blocks for the same path"}
		}

		provided[op.Path] = true

		if !declared[op.Path] {
			return &m.ValidationError{
				Path:   op.Path,
				Rule:   RuleManifest,
				Reason: "content block path is not declared in the manifest",
			}
		}
	}

	for _, p := range manifest {
		if !provided[p] {
			return &m.ValidationError{
				Path:   p,
				Rule:   RuleManifest,
				Reason: "manifest path has no corresponding content block",
			}
		}
	}

	return nil
}

// checkPathSafety applies the per-path rules. Normalization (NFC, then
// lexical cleaning) happens before every structural check; the literal
// string is never trusted on its own.
func checkPathSafety(p m.Path) error {
	s := string(p)

	reject := func(reason string) error {
		return &m.ValidationError{Path: p, Rule: RulePathSafety, Reason: reason}
	}

	if s == "" {
		return reject("path is empty")
	}

	if strings.ContainsRune(s, 0) {
		return reject("path contains a null byte")
	}

	if norm.NFC.String(s) != s {
		return reject("path is not in Unicode NFC form")
	}

	if _, reserved := m.ReservedNames[s]; reserved {
		return reject("path equals a reserved protocol keyword")
	}

	if strings.Contains(s, "\\") {
		return reject("path must use forward slashes")
	}

	if strings.HasPrefix(s, "/") {
		return reject("absolute paths are not allowed")
	}

	if len(s) >= 2 && s[1] == ':' && isASCIILetter(s[0]) {
		return reject("drive-letter paths are not allowed")
	}

	if gopath.Clean(s) != s {
		return reject("path normalization changed the path; possible traversal obfuscation")
	}

	for _, segment := range strings.Split(s, "/") {
		if segment == ".." {
			return reject("path contains a parent-traversal segment")
		}

		if segment == "." || segment == "" {
			return reject("path contains a redundant segment")
		}

		// The control directory holds the audit log, session record and
		// backups; it is excluded from staging by name at any depth, so no
		// payload may address it either.
		if segment == adapter.ControlDirName {
			return reject("path is inside the tool's control directory")
		}
	}

	return nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
