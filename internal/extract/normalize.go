package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns NFC text with unix line breaks, no control or format
// characters, single spaces inside lines, and at most one blank line between
// paragraphs. Leading and trailing whitespace is removed.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	blank := 0 // consecutive newlines written
	space := false
	for _, r := range s {
		switch {
		case r == '\n':
			space = false
			if blank < 2 && b.Len() > 0 {
				b.WriteByte('\n')
			}
			blank++
		case unicode.IsSpace(r):
			space = true
		case r == unicode.ReplacementChar, unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			// binary residue, BOMs, zero-width marks
		default:
			if space && blank == 0 && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			blank = 0
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
