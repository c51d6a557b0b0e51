package rules

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/modality-router/pkg/types"
)

// DefaultConfidenceFloor is the confidence below which the fallback answers unknown
const DefaultConfidenceFloor = 0.5

// Result is the outcome of rule-based classification
type Result struct {
	Modality    types.Modality
	Confidence  float64
	CBTScore    float64
	DBTScore    float64
	Explanation string

	// Indicators that fired for each modality, in table order
	CBTMatches []string
	DBTMatches []string
}

// Matches returns the indicators that fired for m
func (r Result) Matches(m types.Modality) []string {
	switch m {
	case types.ModalityCBT:
		return r.CBTMatches
	case types.ModalityDBT:
		return r.DBTMatches
	}
	return nil
}

// FallbackClassifier scores text against weighted keyword tables. It is
// deterministic, so results are cached by normalized text.
type FallbackClassifier struct {
	cbt   []weightedPattern
	dbt   []weightedPattern
	floor float64
	cache *lru.Cache[string, Result]
}

// NewFallbackClassifier compiles the pattern tables. A cacheSize of zero
// disables caching.
func NewFallbackClassifier(floor float64, cacheSize int) *FallbackClassifier {
	f := &FallbackClassifier{
		cbt:   compilePatterns(cbtPatterns),
		dbt:   compilePatterns(dbtPatterns),
		floor: floor,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, Result](cacheSize)
		if err != nil {
			// This should never happen with valid size parameter
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		f.cache = cache
	}
	return f
}

// Classify returns the modality suggested by keyword evidence
func (f *FallbackClassifier) Classify(text string) Result {
	key := normalize(text)
	if f.cache != nil {
		if r, ok := f.cache.Get(key); ok {
			return cloneResult(r)
		}
	}

	r := f.classify(key)
	if f.cache != nil {
		f.cache.Add(key, cloneResult(r))
	}
	return r
}

func (f *FallbackClassifier) classify(text string) Result {
	var r Result
	r.CBTScore, r.CBTMatches = score(f.cbt, text)
	r.DBTScore, r.DBTMatches = score(f.dbt, text)

	for _, c := range combinations {
		if !c.matches(text) {
			continue
		}
		if c.modality == types.ModalityCBT {
			r.CBTScore += c.bonus
			r.CBTMatches = append(r.CBTMatches, c.label)
		} else {
			r.DBTScore += c.bonus
			r.DBTMatches = append(r.DBTMatches, c.label)
		}
	}

	maxScore := max(r.CBTScore, r.DBTScore)
	switch {
	case maxScore == 0:
		r.Modality = types.ModalityUnknown
		r.Explanation = "no therapy indicators found"
		return r
	}

	winner := types.ModalityCBT
	tied := r.CBTScore == r.DBTScore
	if tied {
		r.Confidence = 0.5
	} else {
		if r.DBTScore > r.CBTScore {
			winner = types.ModalityDBT
		}
		r.Confidence = fallbackConfidence(r.CBTScore, r.DBTScore)
	}

	if r.Confidence < f.floor {
		r.Modality = types.ModalityUnknown
		r.Explanation = fmt.Sprintf("%s indicators too weak (cbt %.1f, dbt %.1f)", winner, r.CBTScore, r.DBTScore)
		return r
	}
	r.Modality = winner
	if tied {
		r.Explanation = fmt.Sprintf("indicators tied at %.1f, defaulting to CBT", maxScore)
		return r
	}
	r.Explanation = fmt.Sprintf("%s indicators: %s (cbt %.1f, dbt %.1f)",
		strings.ToUpper(string(winner)), strings.Join(r.Matches(winner), ", "), r.CBTScore, r.DBTScore)
	return r
}

// fallbackConfidence maps two non-negative scores to a confidence in [0.5, 0.95]
func fallbackConfidence(cbt, dbt float64) float64 {
	maxScore := max(cbt, dbt)
	if maxScore == 0 {
		return 0
	}
	margin := maxScore - min(cbt, dbt)
	conf := min(0.5+(margin/(maxScore+0.1))*0.45, 0.95)
	if maxScore > 3 {
		conf += 0.1
	}
	return min(conf, 0.95)
}

func score(patterns []weightedPattern, text string) (float64, []string) {
	var total float64
	var labels []string
	for _, p := range patterns {
		n := len(p.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		total += p.weight * float64(n)
		labels = append(labels, p.label)
	}
	return total, labels
}

// normalize lowercases text and collapses whitespace
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func cloneResult(r Result) Result {
	r.CBTMatches = append([]string(nil), r.CBTMatches...)
	r.DBTMatches = append([]string(nil), r.DBTMatches...)
	return r
}
