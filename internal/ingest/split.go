package ingest

import (
	"strings"

	"github.com/dshills/modality-router/internal/embedder"
)

// DefaultChunkChars bounds the size of a chunk produced from free text
const DefaultChunkChars = 800

// SplitText breaks free text into chunks on blank lines. Short neighbouring
// paragraphs are merged up to maxChars and longer ones are cut at sentence
// or word boundaries.
func SplitText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}

	var chunks []string
	var current string
	flush := func() {
		if current != "" {
			chunks = append(chunks, current)
			current = ""
		}
	}

	for _, para := range paragraphs(text) {
		if len([]rune(para)) > maxChars {
			flush()
			chunks = append(chunks, splitLong(para, maxChars)...)
			continue
		}
		if current == "" {
			current = para
			continue
		}
		if len([]rune(current))+1+len([]rune(para)) > maxChars {
			flush()
			current = para
			continue
		}
		current += "\n" + para
	}
	flush()
	return chunks
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := strings.Join(strings.Fields(block), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitLong expects whitespace already collapsed, so each piece CleanText
// returns is a prefix of the remaining text.
func splitLong(para string, maxChars int) []string {
	var pieces []string
	rest := para
	for rest != "" {
		piece := embedder.CleanText(rest, maxChars)
		if piece == "" {
			break
		}
		pieces = append(pieces, piece)
		rest = strings.TrimSpace(rest[len(piece):])
	}
	return pieces
}
