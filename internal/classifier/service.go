package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/modality-router/internal/observability"
	"github.com/dshills/modality-router/internal/retrieval"
	"github.com/dshills/modality-router/internal/rules"
	"github.com/dshills/modality-router/internal/techniques"
	"github.com/dshills/modality-router/pkg/types"
)

// ErrRetrieval wraps index failures during live classification
var ErrRetrieval = errors.New("retrieval failed")

const maxEvidenceChars = 300

// Config holds the decision thresholds
type Config struct {
	MinConfidence    float64
	ConfidenceMin    float64
	ConfidenceMax    float64
	SafetyConfidence float64
	Temperature      float64
	EvidenceLimit    int
}

// safetyConfidenceFloor is the lowest confidence a safety override reports
const safetyConfidenceFloor = 0.95

// DefaultConfig returns the standard decision thresholds
func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.6,
		ConfidenceMin:    0.0,
		ConfidenceMax:    0.98,
		SafetyConfidence: 0.95,
		Temperature:      1.0,
		EvidenceLimit:    3,
	}
}

// Retriever finds candidate evidence for a query
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Response, error)
}

// Deps are the collaborators of a Service. Nil rule components get defaults.
type Deps struct {
	Retriever  Retriever
	Safety     *rules.SafetyChecker
	Fallback   *rules.FallbackClassifier
	Expert     *rules.ExpertRules
	Techniques *techniques.Extractor
	Logger     *slog.Logger
}

// Service turns a query into a therapy recommendation. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	retriever  Retriever
	safety     *rules.SafetyChecker
	fallback   *rules.FallbackClassifier
	expert     *rules.ExpertRules
	techniques *techniques.Extractor
	cfg        Config
	logger     *slog.Logger
}

// Request is one classification call
type Request struct {
	Query       string
	UserContext *types.UserContext
}

// NewService creates a classification service
func NewService(deps Deps, cfg Config) *Service {
	s := &Service{
		retriever:  deps.Retriever,
		safety:     deps.Safety,
		fallback:   deps.Fallback,
		expert:     deps.Expert,
		techniques: deps.Techniques,
		cfg:        cfg,
		logger:     deps.Logger,
	}
	if s.safety == nil {
		s.safety = rules.NewSafetyChecker()
	}
	if s.fallback == nil {
		s.fallback = rules.NewFallbackClassifier(rules.DefaultConfidenceFloor, 0)
	}
	if s.expert == nil {
		s.expert = rules.NewExpertRules(rules.DefaultExpertConfig())
	}
	if s.techniques == nil {
		s.techniques = techniques.NewExtractor(techniques.DefaultMaxTechniques)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.EvidenceLimit <= 0 {
		s.cfg.EvidenceLimit = DefaultConfig().EvidenceLimit
	}
	// the ceiling never drops below the safety answer's confidence
	s.cfg.SafetyConfidence = max(s.cfg.SafetyConfidence, safetyConfidenceFloor)
	if s.cfg.ConfidenceMax < s.cfg.SafetyConfidence {
		s.logger.Warn("raising confidence ceiling to safety confidence",
			"confidence_max", s.cfg.ConfidenceMax, "safety_confidence", s.cfg.SafetyConfidence)
		s.cfg.ConfidenceMax = s.cfg.SafetyConfidence
	}
	return s
}

// decision is the working state while a request moves through the steps
type decision struct {
	query       string
	modality    types.Modality
	nominal     types.Modality // best guess even when the answer is unknown
	confidence  float64
	candidates  []types.CandidateMatch
	fallback    *rules.Result
	superseded  bool
	synthetic   []string // evidence that did not come from retrieval
	explanation string
	path        []types.DecisionStep
}

func (d *decision) step(span trace.Span, s types.DecisionStep) {
	d.path = append(d.path, s)
	span.AddEvent(string(s))
}

// Classify recommends CBT, DBT or unknown for a query. Read-path index
// failures produce an unknown result with ErrorKind set and are also
// returned as an error wrapping ErrRetrieval.
func (s *Service) Classify(ctx context.Context, req Request) (*types.ClassificationResult, error) {
	requestID := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, "classifier.Classify",
		attribute.String("request_id", requestID),
	)
	defer span.End()

	query := strings.TrimSpace(req.Query)
	d := &decision{modality: types.ModalityUnknown, nominal: types.ModalityUnknown}

	if query == "" {
		d.step(span, types.StepEmptyQuery)
		d.explanation = "empty query"
		return s.finish(span, requestID, d), nil
	}
	d.query = query

	if s.checkSafety(span, query, d) {
		return s.finish(span, requestID, d), nil
	}

	if err := s.decideFromRetrieval(ctx, span, query, req.UserContext, d); err != nil {
		observability.RecordError(span, err)
		result := s.finish(span, requestID, d)
		result.ErrorKind = types.ErrorKindRetrieval
		result.ErrorDetail = err.Error()
		s.logger.Error("classification failed", "request_id", requestID, "error", err)
		return result, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	if d.confidence < s.cfg.MinConfidence {
		s.applyFallback(span, query, d)
	}

	if d.modality.IsTarget() {
		s.applyExpert(span, query, d)
		if t := s.cfg.Temperature; t > 0 && t != 1 {
			d.confidence = temperatureScale(d.confidence, t)
			d.step(span, types.StepTemperature)
		}
	}

	return s.finish(span, requestID, d), nil
}

func (s *Service) checkSafety(span trace.Span, query string, d *decision) bool {
	phrase, ok := s.safety.Check(query)
	if !ok {
		return false
	}
	d.step(span, types.StepSafety)
	d.modality = types.ModalityDBT
	d.nominal = types.ModalityDBT
	d.confidence = s.cfg.SafetyConfidence
	d.explanation = fmt.Sprintf("crisis language detected (%q); prioritise immediate safety support", phrase)
	d.synthetic = []string{fmt.Sprintf("Crisis language: %q", phrase)}
	s.logger.Warn("safety override", "phrase", phrase)
	return true
}

func (s *Service) decideFromRetrieval(ctx context.Context, span trace.Span, query string, uc *types.UserContext, d *decision) error {
	d.step(span, types.StepRetrieval)
	if s.retriever == nil {
		return nil
	}
	resp, err := s.retriever.Retrieve(ctx, retrieval.Request{Query: uc.Enrich(query)})
	if err != nil {
		return err
	}
	d.candidates = resp.Candidates

	t, ok := vote(d.candidates)
	if !ok {
		d.explanation = "no supporting evidence retrieved"
		return nil
	}
	d.modality = t.Winner
	d.nominal = t.Winner
	d.confidence = calibrate(t.Raw, t.Margin)
	d.explanation = fmt.Sprintf("retrieved evidence favours %s (vote %.2f vs %.2f)",
		strings.ToUpper(string(t.Winner)), t.WinnerVote, t.LoserVote)
	span.SetAttributes(
		attribute.Float64("vote.winner", t.WinnerVote),
		attribute.Float64("vote.margin", t.Margin),
		attribute.Int("candidates", len(d.candidates)),
	)
	return nil
}

// applyFallback consults the rule classifier when retrieval is not confident.
// A more confident rule result replaces the retrieval result; if neither
// reaches the floor the answer is unknown.
func (s *Service) applyFallback(span trace.Span, query string, d *decision) {
	d.step(span, types.StepFallback)
	fb := s.fallback.Classify(query)
	d.fallback = &fb

	if fb.Confidence > d.confidence {
		d.superseded = true
		d.modality = fb.Modality
		d.confidence = fb.Confidence
		d.explanation = "rule-based: " + fb.Explanation
		if fb.Modality.IsTarget() {
			d.nominal = fb.Modality
		}
	}

	if d.confidence < s.cfg.MinConfidence || !d.modality.IsTarget() {
		d.step(span, types.StepFloor)
		d.modality = types.ModalityUnknown
		d.explanation = fmt.Sprintf("insufficient confidence (%.2f < %.2f): %s", d.confidence, s.cfg.MinConfidence, d.explanation)
	}
}

func (s *Service) applyExpert(span trace.Span, query string, d *decision) {
	adj := s.expert.Adjust(query, d.modality, d.confidence)
	if !adj.Applied {
		return
	}
	d.step(span, types.StepExpert)
	if adj.Overridden {
		d.explanation = fmt.Sprintf("expert rules favour %s (cbt %.2f, dbt %.2f)",
			strings.ToUpper(string(adj.Modality)), adj.CBTScore, adj.DBTScore)
	}
	d.modality = adj.Modality
	d.nominal = adj.Modality
	d.confidence = adj.Confidence
}

// finish assembles the result. Evidence always shares the final modality.
func (s *Service) finish(span trace.Span, requestID string, d *decision) *types.ClassificationResult {
	result := &types.ClassificationResult{
		RequestID:             requestID,
		RecommendedApproach:   d.modality,
		Confidence:            clamp(d.confidence, s.cfg.ConfidenceMin, s.cfg.ConfidenceMax),
		SupportingEvidence:    []string{},
		RecommendedTechniques: []types.Technique{},
		Explanation:           d.explanation,
		DecisionPath:          d.path,
	}

	if d.modality.IsTarget() {
		result.AlternativeApproach = d.modality.Opposite()
		result.TherapyInfo = techniques.Info(d.modality)
		result.SupportingEvidence = s.evidence(d)
		result.RecommendedTechniques = s.techniques.Extract(d.candidates, d.modality)
	} else if d.nominal.IsTarget() {
		result.AlternativeApproach = d.nominal
	} else {
		result.AlternativeApproach = types.ModalityCBT
	}

	span.SetAttributes(
		attribute.String("approach", string(result.RecommendedApproach)),
		attribute.Float64("confidence", result.Confidence),
	)
	s.logger.Info("classified",
		"request_id", requestID,
		"approach", result.RecommendedApproach,
		"confidence", result.Confidence,
		"path", d.path)
	return result
}

// evidence prefers retrieved passages of the chosen modality. A fallback
// decision, or one with no matching passages, uses the rule indicators.
func (s *Service) evidence(d *decision) []string {
	if len(d.synthetic) > 0 {
		return d.synthetic
	}
	out := []string{}
	if !d.superseded {
		for _, c := range d.candidates {
			if c.Modality != d.modality {
				continue
			}
			out = append(out, techniques.Truncate(c.Text, maxEvidenceChars))
			if len(out) == s.cfg.EvidenceLimit {
				return out
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	if d.fallback == nil {
		fb := s.fallback.Classify(d.query)
		d.fallback = &fb
	}
	for _, m := range d.fallback.Matches(d.modality) {
		out = append(out, "Indicator: "+m)
		if len(out) == s.cfg.EvidenceLimit {
			break
		}
	}
	return out
}
