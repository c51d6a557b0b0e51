package types

import "strings"

// MatchSource records which search produced a candidate
type MatchSource string

const (
	SourceDense   MatchSource = "dense"
	SourceKeyword MatchSource = "keyword"
	SourceHybrid  MatchSource = "hybrid"
)

// CandidateMatch is a retrieved chunk with its relevance score
type CandidateMatch struct {
	ChunkID    int64       `json:"chunk_id"`
	DocumentID int64       `json:"document_id"`
	Text       string      `json:"text"`
	Modality   Modality    `json:"modality"`
	Score      float64     `json:"score"`
	Source     MatchSource `json:"source"`

	// Component scores before blending, zero when the search did not return the chunk
	DenseScore   float64 `json:"dense_score"`
	KeywordScore float64 `json:"keyword_score"`
}

// Validate checks if the candidate is valid
func (c *CandidateMatch) Validate() error {
	if c.ChunkID == 0 {
		return ErrInvalidChunkID
	}
	if !c.Modality.IsTarget() {
		return ErrInvalidModality
	}
	if c.Score < 0 || c.Score > 1 {
		return ErrInvalidRelevanceScore
	}
	if c.Text == "" {
		return ErrEmptyContent
	}
	switch c.Source {
	case SourceDense, SourceKeyword, SourceHybrid:
	default:
		return ErrInvalidSource
	}
	return nil
}

// Technique is an actionable exercise suggested to the caller
type Technique struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Modality    Modality `json:"modality"`
}

// TherapyInfo describes a modality for display
type TherapyInfo struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	CorePrinciples []string `json:"core_principles"`
	BestFor        []string `json:"best_for"`
}

// UserContext carries optional structured details about the person asking
type UserContext struct {
	Concerns         []string `json:"concerns,omitempty" toml:"concerns"`
	Goals            []string `json:"goals,omitempty" toml:"goals"`
	Symptoms         []string `json:"symptoms,omitempty" toml:"symptoms"`
	PreviousApproach string   `json:"previous_approach,omitempty" toml:"previous_approach"`
}

// Enrich appends the context details to a retrieval query
func (u *UserContext) Enrich(query string) string {
	if u == nil {
		return query
	}
	parts := []string{query}
	if len(u.Concerns) > 0 {
		parts = append(parts, "Concerns: "+strings.Join(u.Concerns, ", "))
	}
	if len(u.Symptoms) > 0 {
		parts = append(parts, "Symptoms: "+strings.Join(u.Symptoms, ", "))
	}
	if len(u.Goals) > 0 {
		parts = append(parts, "Goals: "+strings.Join(u.Goals, ", "))
	}
	return strings.Join(parts, ". ")
}

// DecisionStep names a stage that shaped a classification
type DecisionStep string

const (
	StepSafety      DecisionStep = "safety_override"
	StepRetrieval   DecisionStep = "retrieval_vote"
	StepFallback    DecisionStep = "fallback_rules"
	StepFloor       DecisionStep = "confidence_floor"
	StepExpert      DecisionStep = "expert_rules"
	StepTemperature DecisionStep = "temperature"
	StepEmptyQuery  DecisionStep = "empty_query"
)

// ClassificationResult is the recommendation returned for one query
type ClassificationResult struct {
	RequestID             string         `json:"request_id"`
	RecommendedApproach   Modality       `json:"recommended_approach"`
	Confidence            float64        `json:"confidence"`
	TherapyInfo           *TherapyInfo   `json:"therapy_info,omitempty"`
	SupportingEvidence    []string       `json:"supporting_evidence"`
	RecommendedTechniques []Technique    `json:"recommended_techniques"`
	AlternativeApproach   Modality       `json:"alternative_approach"`
	Explanation           string         `json:"explanation,omitempty"`
	DecisionPath          []DecisionStep `json:"decision_path,omitempty"`
	ErrorKind             ErrorKind      `json:"error_kind,omitempty"`
	ErrorDetail           string         `json:"error_detail,omitempty"`
}

// Failed reports whether the result carries an error
func (r *ClassificationResult) Failed() bool {
	return r.ErrorKind != ErrorKindNone
}
