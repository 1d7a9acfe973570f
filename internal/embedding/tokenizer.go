package embedding

import (
	"strings"
	"unicode/utf8"
)

// runesPerToken approximates BPE tokenizers on mixed prose.
const runesPerToken = 4

// CountTokens estimates how many model tokens text occupies. Every word costs
// at least one token and long words cost one token per four runes.
func CountTokens(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		t := (utf8.RuneCountInString(w) + runesPerToken - 1) / runesPerToken
		if t < 1 {
			t = 1
		}
		n += t
	}
	return n
}

// HashString returns a deterministic hash of s.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
