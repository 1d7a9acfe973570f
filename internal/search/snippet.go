package search

import (
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/pkg/utils"
)

// Snippet returns up to maxLen runes of content, starting a little before the
// first query term found in it. Without a match it returns the head of content.
func Snippet(content, query string, maxLen int) string {
	if maxLen <= 0 {
		return content
	}
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}
	start := -1
	for _, term := range strings.FieldsFunc(strings.ToLower(query), isSeparator) {
		if len([]rune(term)) < 3 {
			continue
		}
		if i := runeIndex(lower, []rune(term)); i >= 0 && (start < 0 || i < start) {
			start = i
		}
	}
	if start < 0 {
		return utils.Truncate(content, maxLen)
	}
	start = max(0, min(start-maxLen/4, len(runes)-maxLen))
	out := strings.TrimSpace(string(runes[start : start+maxLen]))
	if start > 0 {
		out = "..." + out
	}
	if start+maxLen < len(runes) {
		out += "..."
	}
	return out
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}

// runeIndex is strings.Index over runes so the result is a rune offset.
func runeIndex(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
