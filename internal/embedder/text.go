package embedder

import (
	"strings"
	"unicode/utf8"
)

// CleanText collapses whitespace and truncates text to maxChars runes.
// When truncation is needed it cuts after the last sentence end that
// falls in the second half of the budget, otherwise at a word boundary.
func CleanText(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxChars])

	if idx := lastSentenceEnd(cut); idx >= 0 && utf8.RuneCountInString(cut[:idx+1]) > maxChars/2 {
		return cut[:idx+1]
	}
	if runes[maxChars] == ' ' {
		return cut
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		return cut[:idx]
	}
	return cut
}

// lastSentenceEnd returns the byte index of the last '.', '!' or '?'
// followed by a space or the end of s, or -1.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if i == len(s)-1 || s[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}
