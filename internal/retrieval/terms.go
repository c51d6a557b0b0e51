package retrieval

import (
	"strings"
	"unicode"
)

// MaxTerms bounds the number of keyword terms sent to full-text search
const MaxTerms = 24

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "any": true, "can": true, "had": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true, "him": true,
	"his": true, "how": true, "its": true, "may": true, "new": true, "now": true,
	"own": true, "say": true, "she": true, "too": true, "use": true, "who": true,
	"why": true, "yet": true, "did": true, "get": true, "got": true, "let": true,
	"this": true, "that": true, "with": true, "have": true, "from": true, "they": true,
	"them": true, "then": true, "than": true, "there": true, "their": true, "what": true,
	"when": true, "where": true, "which": true, "while": true, "will": true, "would": true,
	"could": true, "should": true, "been": true, "being": true, "were": true, "into": true,
	"just": true, "like": true, "more": true, "most": true, "much": true, "some": true,
	"such": true, "very": true, "also": true, "about": true, "after": true, "again": true,
	"before": true, "because": true, "does": true, "doing": true, "each": true, "even": true,
	"ever": true, "every": true, "feel": true, "feels": true, "felt": true, "keep": true,
	"know": true, "make": true, "makes": true, "really": true, "since": true, "still": true,
	"thing": true, "things": true, "think": true, "want": true, "way": true, "well": true,
	"your": true, "yours": true, "mine": true, "myself": true, "something": true, "anything": true,
	"everything": true, "nothing": true, "someone": true, "everyone": true, "always": true, "never": true,
	"sometimes": true, "minute": true, "next": true, "fine": true, "don": true, "can't": true,
	"i'm": true, "i've": true, "i'll": true, "don't": true, "won't": true, "it's": true,
}

// tokenize lowercases text and splits it into words. Apostrophes inside a
// word are kept so contractions are recognised as stop words.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// ExtractTerms returns the salient terms of a query: stop-word filtered
// tokens of three or more letters, followed by bigrams of salient words
// that were adjacent in the query.
func ExtractTerms(query string) []string {
	tokens := tokenize(query)
	seen := make(map[string]bool)
	var words, bigrams []string

	prev := ""
	for _, tok := range tokens {
		tok = strings.Trim(tok, "'")
		if len([]rune(tok)) < 3 || stopWords[tok] {
			prev = ""
			continue
		}
		if !seen[tok] {
			seen[tok] = true
			words = append(words, tok)
		}
		if prev != "" {
			bg := prev + " " + tok
			if !seen[bg] {
				seen[bg] = true
				bigrams = append(bigrams, bg)
			}
		}
		prev = tok
	}

	terms := append(words, bigrams...)
	if len(terms) > MaxTerms {
		terms = terms[:MaxTerms]
	}
	return terms
}
