package rules

import (
	"strings"

	"github.com/dshills/modality-router/pkg/types"
)

// ExpertConfig controls when expert boosts change a decision
type ExpertConfig struct {
	Enabled             bool
	ActivationThreshold float64
	Margin              float64
	Base                float64
	Scale               float64
	Cap                 float64
}

// DefaultExpertConfig returns the tuned defaults
func DefaultExpertConfig() ExpertConfig {
	return ExpertConfig{
		Enabled:             true,
		ActivationThreshold: 0.3,
		Margin:              0.1,
		Base:                0.6,
		Scale:               2.0,
		Cap:                 0.9,
	}
}

type boost struct {
	substr string
	value  float64
}

var expertBoosts = map[types.Modality][]boost{
	types.ModalityCBT: {
		{"negative thought", 0.3},
		{"thinking pattern", 0.3},
		{"cognitive", 0.2},
		{"catastroph", 0.25},
		{"overthink", 0.2},
		{"worry", 0.15},
		{"anxiety", 0.15},
		{"panic attack", 0.2},
		{"phobia", 0.25},
		{"self-esteem", 0.15},
		{"everyone hates me", 0.2},
		{"good enough", 0.2},
		{"procrastinat", 0.15},
	},
	types.ModalityDBT: {
		{"emotion", 0.2},
		{"mood swing", 0.3},
		{"impulsiv", 0.25},
		{"abandon", 0.3},
		{"borderline", 0.4},
		{"distress", 0.2},
		{"mindfulness", 0.2},
		{"furious", 0.15},
		{"devastated", 0.15},
		{"out of control", 0.2},
		{"emptiness", 0.25},
		{"relationship", 0.1},
		{"intense", 0.1},
	},
}

// directMapping fires when every literal in all is present and, if any is
// non-empty, at least one literal in any is present too. These match known
// phrasings only.
type directMapping struct {
	all      []string
	any      []string
	modality types.Modality
	value    float64
}

var directMappings = []directMapping{
	{all: []string{"mindfulness"}, any: []string{"practice", "technique"}, modality: types.ModalityDBT, value: 0.5},
	{all: []string{"distress"}, any: []string{"tolerance", "tolerate"}, modality: types.ModalityDBT, value: 0.4},
	{all: []string{"emotion"}, any: []string{"control", "regulat"}, modality: types.ModalityDBT, value: 0.4},
	{all: []string{"negative", "thought"}, modality: types.ModalityCBT, value: 0.4},
	{all: []string{"thought"}, any: []string{"challenge", "record"}, modality: types.ModalityCBT, value: 0.4},
}

func (d directMapping) matches(lower string) bool {
	for _, s := range d.all {
		if !strings.Contains(lower, s) {
			return false
		}
	}
	if len(d.any) == 0 {
		return true
	}
	for _, s := range d.any {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Adjustment describes what the expert rules did to a decision
type Adjustment struct {
	Modality   types.Modality
	Confidence float64
	CBTScore   float64
	DBTScore   float64
	Applied    bool // confidence or modality changed
	Overridden bool // modality changed
}

// ExpertRules adjusts a decision using curated phrase boosts
type ExpertRules struct {
	cfg ExpertConfig
}

// NewExpertRules creates expert rules with cfg
func NewExpertRules(cfg ExpertConfig) *ExpertRules {
	if cfg.Scale <= 0 {
		cfg.Scale = DefaultExpertConfig().Scale
	}
	return &ExpertRules{cfg: cfg}
}

// Score sums the boosts for each modality found in query
func (e *ExpertRules) Score(query string) (cbt, dbt float64) {
	lower := normalize(query)
	for _, b := range expertBoosts[types.ModalityCBT] {
		if strings.Contains(lower, b.substr) {
			cbt += b.value
		}
	}
	for _, b := range expertBoosts[types.ModalityDBT] {
		if strings.Contains(lower, b.substr) {
			dbt += b.value
		}
	}
	for _, d := range directMappings {
		if !d.matches(lower) {
			continue
		}
		if d.modality == types.ModalityCBT {
			cbt += d.value
		} else {
			dbt += d.value
		}
	}
	return cbt, dbt
}

// Adjust applies the expert rules to the current decision. When one
// modality's score clears the activation threshold and leads by the margin
// it either overrides a different incumbent or nudges a matching one upward.
func (e *ExpertRules) Adjust(query string, current types.Modality, confidence float64) Adjustment {
	adj := Adjustment{Modality: current, Confidence: confidence}
	if !e.cfg.Enabled {
		return adj
	}
	adj.CBTScore, adj.DBTScore = e.Score(query)

	lead, hi, lo := types.ModalityCBT, adj.CBTScore, adj.DBTScore
	if adj.DBTScore > adj.CBTScore {
		lead, hi, lo = types.ModalityDBT, adj.DBTScore, adj.CBTScore
	}
	if hi < e.cfg.ActivationThreshold || hi-lo < e.cfg.Margin {
		return adj
	}

	target := min(e.cfg.Cap, e.cfg.Base+hi/e.cfg.Scale)
	if lead != current {
		adj.Modality = lead
		adj.Confidence = max(confidence, target)
		adj.Applied = true
		adj.Overridden = true
		return adj
	}

	// Same modality: move part of the way toward the target, proportional to the score
	if confidence < target {
		weight := min(1, hi/e.cfg.Scale)
		adj.Confidence = confidence + (target-confidence)*weight
		adj.Applied = true
	}
	return adj
}
