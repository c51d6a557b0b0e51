package techniques

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dshills/modality-router/pkg/types"
)

const (
	// DefaultMaxTechniques bounds the techniques returned per result
	DefaultMaxTechniques = 3

	maxNameChars        = 60
	maxDescriptionChars = 200
)

var indicatorRe = regexp.MustCompile(`(?i)\b(exercises?|worksheets?|skills?|techniques?|practices?|strateg(y|ies)|tools?|methods?|records?|journal(ing)?|activit(y|ies)|steps?)\b`)

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// Extractor pulls technique snippets out of evidence text
type Extractor struct {
	max int
}

// NewExtractor returns an extractor yielding at most max techniques
func NewExtractor(max int) *Extractor {
	if max <= 0 {
		max = DefaultMaxTechniques
	}
	return &Extractor{max: max}
}

// Extract returns techniques found in candidates of the given modality.
// Candidates of any other modality are ignored. When nothing is found the
// built-in defaults for the modality are returned.
func (e *Extractor) Extract(candidates []types.CandidateMatch, modality types.Modality) []types.Technique {
	if !modality.IsTarget() {
		return []types.Technique{}
	}

	var out []types.Technique
	seen := make(map[string]bool)
	for _, c := range candidates {
		if c.Modality != modality {
			continue
		}
		for _, para := range paragraphs(c.Text) {
			if !indicatorRe.MatchString(para) {
				continue
			}
			name := Truncate(firstSentence(para), maxNameChars)
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, types.Technique{
				Name:        name,
				Description: Truncate(para, maxDescriptionChars),
				Modality:    modality,
			})
			if len(out) == e.max {
				return out
			}
		}
	}

	if len(out) == 0 {
		return Defaults(modality)
	}
	return out
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstSentence(para string) string {
	if loc := sentenceEnd.FindStringIndex(para); loc != nil {
		return strings.TrimSpace(para[:loc[0]+1])
	}
	return para
}

// Truncate shortens s to at most n runes, cutting at a word boundary
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= 3 {
		return string(runes[:max(n, 0)])
	}
	cut := string(runes[:n-3])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}
