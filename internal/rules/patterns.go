package rules

import (
	"regexp"
	"strings"

	"github.com/dshills/modality-router/pkg/types"
)

// weightedPattern is a compiled indicator and the score each match adds
type weightedPattern struct {
	re     *regexp.Regexp
	label  string
	weight float64
}

type patternSpec struct {
	expr   string
	label  string
	weight float64
}

var cbtPatterns = []patternSpec{
	{`\bnegative\s+thoughts?\b`, "negative thoughts", 2.0},
	{`\bthinking\s+patterns?\b`, "thinking patterns", 2.0},
	{`\bcognitive\s+distortions?\b`, "cognitive distortions", 2.5},
	{`\bcatastrophi[sz]`, "catastrophizing", 2.0},
	{`\bintrusive\s+thoughts?\b`, "intrusive thoughts", 1.5},
	{`\bover-?thinking\b|\boverthink`, "overthinking", 1.5},
	{`\bruminat`, "rumination", 1.5},
	{`\birrational\b`, "irrational beliefs", 1.5},
	{`\beveryone\s+hates\s+me\b`, "mind reading", 1.5},
	{`\b(never|not)\s+(be\s+)?good\s+enough\b`, "self-criticism", 1.5},
	{`\bworthless\b|\bfailure\b`, "negative self-image", 1.0},
	{`\bworr(y|ied|ying|ies)\b`, "worry", 1.0},
	{`\banxi(ety|ous)\b`, "anxiety", 1.0},
	{`\bpanic\b`, "panic", 1.0},
	{`\bphobi(a|as|c)\b`, "phobia", 1.5},
	{`\bdepress(ed|ion|ing)?\b`, "low mood", 1.0},
	{`\bprocrastinat`, "procrastination", 1.0},
	{`\bself[-\s]esteem\b`, "self-esteem", 1.0},
	{`\bbeliefs?\b`, "beliefs", 1.0},
	{`\bwhat\s+if\b`, "what-if thinking", 1.0},
	{`\bcan'?t\s+stop\s+thinking\b`, "repetitive thinking", 1.5},
}

var dbtPatterns = []patternSpec{
	{`\bemotions?\b|\bemotional(ly)?\b`, "emotions", 1.0},
	{`\bcontrol(ling)?\s+my\s+emotions\b`, "emotion control", 2.5},
	{`\bmood\s+swings?\b`, "mood swings", 2.0},
	{`\bone\s+minute\b`, "rapid shifts", 1.5},
	{`\bfurious\b|\brage\b|\boutbursts?\b|\bang(er|ry)\b`, "anger", 1.0},
	{`\bdevastated\b`, "intense sadness", 1.0},
	{`\bimpulsiv(e|ity)\b`, "impulsivity", 1.5},
	{`\bself[-\s]?destructive\b`, "self-destructive behaviour", 2.0},
	{`\babandon(ed|ment)?\b`, "fear of abandonment", 2.0},
	{`\brelationships?\b`, "relationships", 1.0},
	{`\bintense\b|\bintensity\b`, "intensity", 1.0},
	{`\boverwhelm(ed|ing)?\b`, "overwhelm", 1.0},
	{`\bborderline\b|\bbpd\b`, "borderline", 2.5},
	{`\bdistress\b`, "distress", 1.5},
	{`\bmindful(ness)?\b`, "mindfulness", 1.5},
	{`\bcrisis\b`, "crisis", 1.0},
	{`\bempt(y|iness)\b`, "emptiness", 1.5},
	{`\bout\s+of\s+control\b`, "loss of control", 1.5},
	{`\bnumb\b`, "numbness", 1.0},
}

// combination adds a fixed bonus when every group has at least one match.
// It resolves words that alone point both ways, such as "control".
type combination struct {
	groups   [][]string
	modality types.Modality
	bonus    float64
	label    string
}

var combinations = []combination{
	{[][]string{{"emotion"}, {"control", "regulat", "manage"}}, types.ModalityDBT, 2.0, "emotion regulation"},
	{[][]string{{"thought", "thinking"}, {"negative", "distort"}}, types.ModalityCBT, 1.5, "negative thinking"},
	{[][]string{{"relationship"}, {"intense", "unstable", "abandon"}}, types.ModalityDBT, 1.5, "unstable relationships"},
	{[][]string{{"worry", "anxi"}, {"what if", "worst"}}, types.ModalityCBT, 1.0, "anticipatory anxiety"},
	{[][]string{{"mindful"}, {"practice", "technique", "skill"}}, types.ModalityDBT, 1.0, "mindfulness practice"},
}

func (c combination) matches(lower string) bool {
	for _, group := range c.groups {
		found := false
		for _, needle := range group {
			if strings.Contains(lower, needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func compilePatterns(specs []patternSpec) []weightedPattern {
	out := make([]weightedPattern, len(specs))
	for i, s := range specs {
		out[i] = weightedPattern{re: regexp.MustCompile(`(?i)` + s.expr), label: s.label, weight: s.weight}
	}
	return out
}
