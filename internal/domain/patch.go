package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	m "github.com/halfmoth/graft/internal/model"
)

// ApplyPatch computes the byte-level mutation a patch describes, or a typed
// failure. Pure function: it never touches the filesystem, and a returned
// error guarantees the caller has nothing to write.
//
// Matching is attempted on the raw bytes first. Only when that fails and the
// file uses a uniform non-LF line-ending convention is a second attempt made
// in LF-normalized space; the output is then re-encoded with the file's
// convention, so bytes outside the anchor stay identical either way.
func ApplyPatch(current []byte, spec *m.PatchSpec, path m.Path) ([]byte, error) {
	sum := sha256.Sum256(current)
	if hex.EncodeToString(sum[:]) != spec.BaseSHA256 {
		return nil, &m.PatchError{
			Path:   path,
			Kind:   m.PatchStaleBase,
			Reason: "target content no longer matches BASE_SHA256",
			Advice: "regenerate the patch against the file's current content",
		}
	}

	anchor := spec.Anchor()

	if out, done, err := applyIn(current, anchor, spec, path); done {
		return out, err
	}

	// Raw match found nothing. Retry in LF space when the file's convention
	// round-trips losslessly; a mixed-EOL file never takes this path.
	eol := dominantEOL(current)
	if eol != "\n" {
		norm := normalizeEOL(current)
		if bytes.Equal(denormalizeEOL(norm, eol), current) {
			normSpec := &m.PatchSpec{
				MaxMatches: spec.MaxMatches,
				LeftCtx:    normalizeEOL(spec.LeftCtx),
				Old:        normalizeEOL(spec.Old),
				RightCtx:   normalizeEOL(spec.RightCtx),
				New:        normalizeEOL(spec.New),
			}

			if out, done, err := applyIn(norm, normSpec.Anchor(), normSpec, path); done {
				if err != nil {
					return nil, err
				}

				return denormalizeEOL(out, eol), nil
			}
		}
	}

	return nil, &m.PatchError{
		Path:     path,
		Kind:     m.PatchNoMatch,
		Reason:   "anchor not found in target",
		Excerpts: Locate(current, spec),
		Advice:   "regenerate the patch, or send a full-file replacement instead",
	}
}

// applyIn runs the occurrence count and substitution against one byte space.
// done is false only when the anchor was not found at all, letting the caller
// retry in another space before reporting NoMatch.
func applyIn(current, anchor []byte, spec *m.PatchSpec, path m.Path) (out []byte, done bool, err error) {
	occurrences := findOccurrences(current, anchor)
	if len(occurrences) == 0 {
		return nil, false, nil
	}

	if len(occurrences) != spec.MaxMatches {
		return nil, true, &m.PatchError{
			Path:     path,
			Kind:     m.PatchAmbiguousMatch,
			Reason:   fmt.Sprintf("anchor matched %d times, expected %d", len(occurrences), spec.MaxMatches),
			Excerpts: matchExcerpts(current, occurrences),
			Advice:   "extend LEFT_CTX/RIGHT_CTX until the anchor is unique, or set MAX_MATCHES",
		}
	}

	// The expectation held; the first occurrence is the intended one.
	idx := occurrences[0]
	spanStart := idx + len(spec.LeftCtx)
	spanEnd := spanStart + len(spec.Old)

	result := make([]byte, 0, len(current)-len(spec.Old)+len(spec.New))
	result = append(result, current[:spanStart]...)
	result = append(result, spec.New...)
	result = append(result, current[spanEnd:]...)

	return result, true, nil
}

// findOccurrences returns the start offsets of non-overlapping occurrences.
func findOccurrences(data, needle []byte) []int {
	if len(needle) == 0 {
		return nil
	}

	var offsets []int

	off := 0

	for {
		i := bytes.Index(data[off:], needle)
		if i < 0 {
			break
		}

		offsets = append(offsets, off+i)
		off += i + len(needle)
	}

	return offsets
}

// dominantEOL returns the most frequent line-ending sequence in data,
// defaulting to LF when data has none or the counts tie.
func dominantEOL(data []byte) string {
	crlf := bytes.Count(data, []byte("\r\n"))
	lf := bytes.Count(data, []byte("\n")) - crlf
	cr := bytes.Count(data, []byte("\r")) - crlf

	switch {
	case crlf > lf && crlf > cr:
		return "\r\n"
	case cr > lf && cr > crlf:
		return "\r"
	default:
		return "\n"
	}
}

func normalizeEOL(data []byte) []byte {
	out := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	return bytes.ReplaceAll(out, []byte("\r"), []byte("\n"))
}

func denormalizeEOL(data []byte, eol string) []byte {
	if eol == "\n" {
		return append([]byte(nil), data...)
	}

	return bytes.ReplaceAll(data, []byte("\n"), []byte(eol))
}

// HashContent returns the lowercase hex SHA-256 of content, the digest form
// used for base hashes and the audit log.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}
