// Package domain contains the pure ingestion logic: the block parser, the
// manifest validator, the patch engine and the pipeline that drives them.
package domain

import (
	"fmt"
	"strconv"
	"strings"

	m "github.com/halfmoth/graft/internal/model"
)

// Wire format markers. A block opens with
//
//	%%%GRAFT <KIND>[ <path>][ @<token>]
//
// and closes with a terminator that repeats the opener byte for byte:
//
//	%%%END <KIND>[ <path>][ @<token>]
//
// Inside an open block only the bound terminator ends capture; any other
// marker-looking line is content. The optional boundary token lets a payload
// author fence content that itself contains terminator-looking lines.
const (
	openMarker    = "%%%GRAFT"
	endMarker     = "%%%END"
	sectionPrefix = "%%"
)

// Patch section keys, accepted in any order inside a PATCH block.
// BASE_SHA256 and MAX_MATCHES take an inline value; the four text sections
// run until the next section key or the block terminator. Text-section bytes
// are the captured lines joined with \n and no trailing newline; an explicit
// empty last line adds one. FILE bodies keep every line's newline, including
// the last.
const (
	keyBaseSHA256 = "BASE_SHA256"
	keyMaxMatches = "MAX_MATCHES"
	keyLeftCtx    = "LEFT_CTX"
	keyOld        = "OLD"
	keyRightCtx   = "RIGHT_CTX"
	keyNew        = "NEW"
)

// Parse turns raw payload text into a sequence of typed blocks. It operates
// purely on the text and performs no I/O. Any structural problem rejects the
// whole payload with a ParseError carrying the offending line.
func Parse(payload string) ([]m.Block, error) {
	lines := splitLines(payload)

	var blocks []m.Block

	i := 0
	for i < len(lines) {
		lineNo := i + 1
		stripped := stripQuotePrefix(lines[i])

		if isFenceLine(stripped) {
			i++

			continue
		}

		if !strings.HasPrefix(stripped, openMarker) {
			if strings.HasPrefix(stripped, endMarker) {
				return nil, &m.ParseError{Line: lineNo, Reason: "terminator without a matching opening marker"}
			}

			// Prose between blocks is tolerated and ignored.
			i++

			continue
		}

		header, err := parseHeader(stripped, lineNo)
		if err != nil {
			return nil, err
		}

		body, next, err := captureBody(lines, i+1, header)
		if err != nil {
			return nil, err
		}

		block, err := buildBlock(header, body)
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, block)
		i = next
	}

	if len(blocks) == 0 {
		return nil, &m.ParseError{Line: 1, Reason: "payload contains no blocks"}
	}

	return blocks, nil
}

// header carries the parsed fields of one opening marker.
type header struct {
	kind  m.BlockKind
	path  m.Path
	token string
	line  int
}

func parseHeader(line string, lineNo int) (header, error) {
	rest := strings.TrimPrefix(line, openMarker)
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return header{}, &m.ParseError{Line: lineNo, Reason: "malformed opening marker"}
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return header{}, &m.ParseError{Line: lineNo, Reason: "opening marker is missing a block kind"}
	}

	h := header{line: lineNo}

	switch fields[0] {
	case string(m.BlockPlan):
		h.kind = m.BlockPlan
	case string(m.BlockManifest):
		h.kind = m.BlockManifest
	case string(m.BlockFile):
		h.kind = m.BlockFile
	case string(m.BlockPatch):
		h.kind = m.BlockPatch
	case string(m.BlockDelete):
		h.kind = m.BlockDelete
	default:
		// Unknown kinds are never defaulted to a writable kind.
		return header{}, &m.ParseError{Line: lineNo, Reason: fmt.Sprintf("unknown block kind %q", fields[0])}
	}

	args := fields[1:]
	if len(args) > 0 && strings.HasPrefix(args[len(args)-1], "@") {
		h.token = args[len(args)-1]
		args = args[:len(args)-1]
	}

	switch h.kind {
	case m.BlockPlan, m.BlockManifest:
		if len(args) != 0 {
			return header{}, &m.ParseError{Line: lineNo, Reason: fmt.Sprintf("%s block does not take a path", h.kind)}
		}
	case m.BlockFile, m.BlockPatch, m.BlockDelete:
		if len(args) != 1 {
			return header{}, &m.ParseError{Line: lineNo, Reason: fmt.Sprintf("%s block requires exactly one path", h.kind)}
		}

		h.path = m.Path(args[0])
	case m.BlockUnknown:
		return header{}, &m.ParseError{Line: lineNo, Reason: "unknown block kind"}
	}

	return h, nil
}

// terminator builds the closing marker bound to this header. The terminator
// must repeat kind, path and boundary token exactly.
func (h header) terminator() string {
	t := endMarker + " " + string(h.kind)
	if h.path != "" {
		t += " " + string(h.path)
	}

	if h.token != "" {
		t += " " + h.token
	}

	return t
}

// captureBody collects content lines verbatim until the terminator bound to
// the opener. No wrapper stripping happens inside an open block.
func captureBody(lines []string, start int, h header) (body []string, next int, err error) {
	terminator := h.terminator()

	for j := start; j < len(lines); j++ {
		if lines[j] == terminator {
			return lines[start:j], j + 1, nil
		}
	}

	return nil, 0, &m.ParseError{
		Line:   h.line,
		Reason: fmt.Sprintf("%s block opened here has no terminator %q", h.kind, terminator),
	}
}

func buildBlock(h header, body []string) (m.Block, error) {
	block := m.Block{Kind: h.kind, Line: h.line, Path: h.path}

	switch h.kind {
	case m.BlockPlan:
		block.Text = strings.Join(body, "\n")
	case m.BlockManifest:
		for _, line := range body {
			entry := strings.TrimSpace(line)
			if entry == "" {
				continue
			}

			block.Manifest = append(block.Manifest, m.Path(entry))
		}
	case m.BlockFile:
		if len(body) > 0 {
			block.Content = []byte(strings.Join(body, "\n") + "\n")
		}
	case m.BlockDelete:
		for idx, line := range body {
			if strings.TrimSpace(line) != "" {
				return m.Block{}, &m.ParseError{
					Line:   h.line + 1 + idx,
					Reason: "DELETE block must have no content",
				}
			}
		}
	case m.BlockPatch:
		patch, err := parsePatchBody(body, h.line)
		if err != nil {
			return m.Block{}, err
		}

		block.Patch = patch
	case m.BlockUnknown:
		return m.Block{}, &m.ParseError{Line: h.line, Reason: "unknown block kind"}
	}

	return block, nil
}

//nolint:gocyclo // One switch per section key; splitting would obscure the format.
func parsePatchBody(body []string, openerLine int) (*m.PatchSpec, error) {
	spec := &m.PatchSpec{MaxMatches: 1}

	sections := make(map[string][]string)
	seen := make(map[string]bool)

	current := ""

	for idx, line := range body {
		lineNo := openerLine + 1 + idx

		if !isSectionLine(line) {
			if current == "" {
				if strings.TrimSpace(line) != "" {
					return nil, &m.ParseError{Line: lineNo, Reason: "patch content outside a section"}
				}

				continue
			}

			sections[current] = append(sections[current], line)

			continue
		}

		key, value, hasValue := splitSectionLine(line)
		if seen[key] {
			return nil, &m.ParseError{Line: lineNo, Reason: fmt.Sprintf("duplicate patch section %s", key)}
		}

		switch key {
		case keyBaseSHA256:
			if !hasValue || !isHex64(value) {
				return nil, &m.ParseError{Line: lineNo, Reason: "BASE_SHA256 requires a 64-character hex value"}
			}

			spec.BaseSHA256 = strings.ToLower(value)
			current = ""
		case keyMaxMatches:
			n, err := strconv.Atoi(value)
			if !hasValue || err != nil || n < 1 {
				return nil, &m.ParseError{Line: lineNo, Reason: "MAX_MATCHES requires a positive integer"}
			}

			spec.MaxMatches = n
			current = ""
		case keyLeftCtx, keyOld, keyRightCtx, keyNew:
			if hasValue {
				return nil, &m.ParseError{Line: lineNo, Reason: fmt.Sprintf("%s takes no inline value", key)}
			}

			current = key
			sections[current] = []string{}
		default:
			return nil, &m.ParseError{Line: lineNo, Reason: fmt.Sprintf("unknown patch section %q", key)}
		}

		seen[key] = true
	}

	if spec.BaseSHA256 == "" {
		return nil, &m.ParseError{Line: openerLine, Reason: "patch is missing BASE_SHA256"}
	}

	spec.LeftCtx = sectionBytes(sections, keyLeftCtx)
	spec.Old = sectionBytes(sections, keyOld)
	spec.RightCtx = sectionBytes(sections, keyRightCtx)
	spec.New = sectionBytes(sections, keyNew)

	if len(spec.Anchor()) == 0 {
		return nil, &m.ParseError{Line: openerLine, Reason: "patch anchor is empty"}
	}

	return spec, nil
}

// isSectionLine reports whether a patch body line is a %%KEY marker. Lines
// starting with the three-percent sigil are always content.
func isSectionLine(line string) bool {
	return strings.HasPrefix(line, sectionPrefix) && !strings.HasPrefix(line, sectionPrefix+"%")
}

func splitSectionLine(line string) (key, value string, hasValue bool) {
	rest := strings.TrimPrefix(line, sectionPrefix)

	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}

	return parts[0], "", false
}

func sectionBytes(sections map[string][]string, key string) []byte {
	lines, ok := sections[key]
	if !ok || len(lines) == 0 {
		return nil
	}

	return []byte(strings.Join(lines, "\n"))
}

// splitLines splits on \n and drops a single trailing \r per line, so CRLF
// payloads parse identically to LF ones.
func splitLines(payload string) []string {
	lines := strings.Split(payload, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	return lines
}

// stripQuotePrefix removes reply-quoting prefixes. Applied only outside
// blocks; content capture never strips.
func stripQuotePrefix(line string) string {
	for {
		switch {
		case strings.HasPrefix(line, "> "):
			line = line[2:]
		case line == ">":
			return ""
		default:
			return line
		}
	}
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}

	return true
}
