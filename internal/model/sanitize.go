package model

import (
	"strings"
	"unicode"
)

// SanitizeSegment makes s usable as a single path segment. Letters of any
// script, digits, '.' and '-' survive; every other run collapses to '_'.
func SanitizeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' {
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if pending {
		b.WriteByte('_')
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "_"
	}
	return out
}
