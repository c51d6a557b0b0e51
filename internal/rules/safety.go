package rules

import (
	"regexp"
	"strings"
)

// safetyPatterns are high-precision phrasings of suicidal intent or self-harm.
// A match routes straight to DBT regardless of anything else.
var safetyPatterns = []string{
	`\bkill(ing)?\s+my\s*self\b`,
	`\bsuicid(e|al)\b`,
	`\bend(ing)?\s+(it\s+all|my\s+(own\s+)?life)\b`,
	`\btake\s+my\s+(own\s+)?life\b`,
	`\bwant(ed)?\s+to\s+die\b`,
	`\bbetter\s+off\s+dead\b`,
	`\bno\s+reason\s+to\s+live\b`,
	`\bself[-\s]?harm(ing)?\b`,
	`\bhurt(ing)?\s+my\s*self\b`,
	`\bcut(ting)?\s+my\s*self\b`,
}

// SafetyChecker detects language that must bypass normal routing
type SafetyChecker struct {
	patterns []*regexp.Regexp
}

// NewSafetyChecker compiles the safety pattern list
func NewSafetyChecker() *SafetyChecker {
	s := &SafetyChecker{patterns: make([]*regexp.Regexp, len(safetyPatterns))}
	for i, p := range safetyPatterns {
		s.patterns[i] = regexp.MustCompile(`(?i)` + p)
	}
	return s
}

// Check returns the matched phrase and true when text contains safety language
func (s *SafetyChecker) Check(text string) (string, bool) {
	text = strings.Join(strings.Fields(text), " ")
	for _, re := range s.patterns {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}
