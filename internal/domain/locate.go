package domain

import (
	"bytes"

	m "github.com/halfmoth/graft/internal/model"
)

// Diagnostic bounds. Fixed so pathological inputs cannot produce runaway
// output.
const (
	probeLen    = 32
	excerptLen  = 160
	maxExcerpts = 3
)

// Locate is the read-only "did you mean" probe used when an anchor finds no
// match. It searches with a short prefix of the left context and a short
// suffix of the right context to surface the single most plausible region as
// a bounded excerpt. This is a locate, never an apply: it shares no code
// path with ApplyPatch and its result is advisory only.
func Locate(current []byte, spec *m.PatchSpec) []m.Excerpt {
	probes := [][]byte{
		probePrefix(spec.LeftCtx),
		probePrefix(spec.Old),
		probeSuffix(spec.RightCtx),
	}

	for _, probe := range probes {
		if len(probe) == 0 {
			continue
		}

		if idx := bytes.Index(current, probe); idx >= 0 {
			return []m.Excerpt{excerptAround(current, idx)}
		}
	}

	return nil
}

// matchExcerpts presents the first few anchor occurrences so a corrected,
// longer anchor can be authored.
func matchExcerpts(current []byte, offsets []int) []m.Excerpt {
	n := len(offsets)
	if n > maxExcerpts {
		n = maxExcerpts
	}

	excerpts := make([]m.Excerpt, 0, n)
	for _, off := range offsets[:n] {
		excerpts = append(excerpts, excerptAround(current, off))
	}

	return excerpts
}

func probePrefix(b []byte) []byte {
	if len(b) > probeLen {
		return b[:probeLen]
	}

	return b
}

func probeSuffix(b []byte) []byte {
	if len(b) > probeLen {
		return b[len(b)-probeLen:]
	}

	return b
}

// excerptAround returns a fixed-length window of current centered near off.
func excerptAround(current []byte, off int) m.Excerpt {
	start := off - excerptLen/4
	if start < 0 {
		start = 0
	}

	end := start + excerptLen
	if end > len(current) {
		end = len(current)
	}

	return m.Excerpt{Offset: start, Text: string(current[start:end])}
}
