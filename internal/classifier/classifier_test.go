package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modality-router/internal/retrieval"
	"github.com/dshills/modality-router/internal/rules"
	"github.com/dshills/modality-router/pkg/types"
)

const (
	cbtScenario = "I keep having negative thoughts that I can't get rid of. I think everyone hates me and I'll never be good enough."
	dbtScenario = "I have trouble controlling my emotions. One minute I'm fine, and the next I'm furious or devastated."
	neutral     = "Could you help me understand what is going on lately"
)

// fakeRetriever returns a canned response and records requests
type fakeRetriever struct {
	candidates []types.CandidateMatch
	err        error
	queries    []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Response, error) {
	f.queries = append(f.queries, req.Query)
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Response{Candidates: append([]types.CandidateMatch(nil), f.candidates...)}, nil
}

func cand(id int64, m types.Modality, score float64, text string) types.CandidateMatch {
	return types.CandidateMatch{ChunkID: id, Modality: m, Score: score, Text: text, Source: types.SourceDense}
}

func newTestService(r Retriever, cfg Config) *Service {
	return NewService(Deps{
		Retriever: r,
		Fallback:  rules.NewFallbackClassifier(rules.DefaultConfidenceFloor, 32),
	}, cfg)
}

func assertInvariants(t *testing.T, cfg Config, r *types.ClassificationResult) {
	t.Helper()
	assert.Contains(t, []types.Modality{types.ModalityCBT, types.ModalityDBT, types.ModalityUnknown}, r.RecommendedApproach)
	assert.GreaterOrEqual(t, r.Confidence, cfg.ConfidenceMin)
	assert.LessOrEqual(t, r.Confidence, cfg.ConfidenceMax)
	assert.True(t, r.AlternativeApproach.IsTarget())
	if r.RecommendedApproach.IsTarget() {
		assert.NotEqual(t, r.RecommendedApproach, r.AlternativeApproach)
	}
	assert.NotEmpty(t, r.RequestID)
}

func TestClassify_EmptyQuery(t *testing.T) {
	r := &fakeRetriever{err: errors.New("must not be called")}
	svc := newTestService(r, DefaultConfig())

	for _, q := range []string{"", "   \n\t"} {
		result, err := svc.Classify(context.Background(), Request{Query: q})
		require.NoError(t, err)
		assert.Equal(t, types.ModalityUnknown, result.RecommendedApproach)
		assert.Equal(t, 0.0, result.Confidence)
		assert.Empty(t, result.SupportingEvidence)
		assert.Empty(t, result.RecommendedTechniques)
		assert.Nil(t, result.TherapyInfo)
		assert.Equal(t, []types.DecisionStep{types.StepEmptyQuery}, result.DecisionPath)
	}
	assert.Empty(t, r.queries)
}

func TestClassify_SafetyOverride(t *testing.T) {
	// The index is broken; the override must not depend on it
	r := &fakeRetriever{err: errors.New("index unavailable")}
	cfg := DefaultConfig()
	svc := newTestService(r, cfg)

	for _, q := range []string{"I want to kill myself", "Lately I've been thinking about suicide", "I keep hurting myself"} {
		t.Run(q, func(t *testing.T) {
			result, err := svc.Classify(context.Background(), Request{Query: q})
			require.NoError(t, err)
			assertInvariants(t, cfg, result)
			assert.Equal(t, types.ModalityDBT, result.RecommendedApproach)
			assert.GreaterOrEqual(t, result.Confidence, 0.95)
			assert.Equal(t, types.ModalityCBT, result.AlternativeApproach)
			assert.Equal(t, []types.DecisionStep{types.StepSafety}, result.DecisionPath)
			require.Len(t, result.SupportingEvidence, 1)
			assert.Contains(t, result.SupportingEvidence[0], "Crisis language")
			assert.NotEmpty(t, result.RecommendedTechniques)
			require.NotNil(t, result.TherapyInfo)
			assert.Equal(t, "Dialectical Behavior Therapy", result.TherapyInfo.Name)
		})
	}
	assert.Empty(t, r.queries)
}

func TestClassify_Scenarios_EmptyIndex(t *testing.T) {
	cfg := DefaultConfig()
	svc := newTestService(&fakeRetriever{}, cfg)

	tests := []struct {
		query string
		want  types.Modality
	}{
		{cbtScenario, types.ModalityCBT},
		{dbtScenario, types.ModalityDBT},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			result, err := svc.Classify(context.Background(), Request{Query: tt.query})
			require.NoError(t, err)
			assertInvariants(t, cfg, result)
			assert.Equal(t, tt.want, result.RecommendedApproach)
			assert.InDelta(t, 0.95, result.Confidence, 1e-6)
			assert.Contains(t, result.DecisionPath, types.StepFallback)
			require.NotEmpty(t, result.SupportingEvidence)
			assert.LessOrEqual(t, len(result.SupportingEvidence), cfg.EvidenceLimit)
			for _, e := range result.SupportingEvidence {
				assert.True(t, strings.HasPrefix(e, "Indicator: "), e)
			}
			assert.Len(t, result.RecommendedTechniques, 2) // built-in defaults
		})
	}
}

func TestClassify_RetrievalDecision(t *testing.T) {
	r := &fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.9, "Try the thought record exercise. Write the thought and the evidence."),
		cand(2, types.ModalityCBT, 0.8, "Balanced thinking takes practice."),
		cand(3, types.ModalityDBT, 0.2, "Distress tolerance skills for a crisis."),
	}}
	cfg := DefaultConfig()
	svc := newTestService(r, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: neutral})
	require.NoError(t, err)
	assertInvariants(t, cfg, result)

	assert.Equal(t, types.ModalityCBT, result.RecommendedApproach)
	assert.Equal(t, types.ModalityDBT, result.AlternativeApproach)
	assert.InDelta(t, 0.95, result.Confidence, 1e-9)
	assert.Equal(t, []types.DecisionStep{types.StepRetrieval}, result.DecisionPath)

	// evidence never mixes modalities
	require.Len(t, result.SupportingEvidence, 2)
	assert.NotContains(t, result.SupportingEvidence, "Distress tolerance skills for a crisis.")
	require.NotEmpty(t, result.RecommendedTechniques)
	assert.Equal(t, "Try the thought record exercise.", result.RecommendedTechniques[0].Name)
	for _, tech := range result.RecommendedTechniques {
		assert.Equal(t, types.ModalityCBT, tech.Modality)
	}
}

func TestClassify_AmbiguousIsLessConfident(t *testing.T) {
	cfg := DefaultConfig()
	ambiguous := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.6, "Notice what happens."),
		cand(2, types.ModalityDBT, 0.6, "Notice what happens next."),
	}}, cfg)
	clear := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.9, "Notice what happens."),
		cand(2, types.ModalityCBT, 0.8, "Notice what happens next."),
	}}, cfg)

	a, err := ambiguous.Classify(context.Background(), Request{Query: neutral})
	require.NoError(t, err)
	c, err := clear.Classify(context.Background(), Request{Query: neutral})
	require.NoError(t, err)

	assertInvariants(t, cfg, a)
	assertInvariants(t, cfg, c)
	assert.Equal(t, types.ModalityUnknown, a.RecommendedApproach)
	assert.InDelta(t, 0.5, a.Confidence, 1e-9)
	assert.Equal(t, types.ModalityCBT, c.RecommendedApproach)
	assert.Less(t, a.Confidence, c.Confidence-0.3)
}

func TestClassify_FallbackSupersedes(t *testing.T) {
	cfg := DefaultConfig()
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.52, "Notice what happens."),
		cand(2, types.ModalityDBT, 0.48, "Notice what happens next."),
	}}, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: dbtScenario})
	require.NoError(t, err)
	assertInvariants(t, cfg, result)
	assert.Equal(t, types.ModalityDBT, result.RecommendedApproach)
	assert.Equal(t, []types.DecisionStep{types.StepRetrieval, types.StepFallback}, result.DecisionPath)
	for _, e := range result.SupportingEvidence {
		assert.True(t, strings.HasPrefix(e, "Indicator: "), e)
	}
}

func TestClassify_FallbackConsistency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.8
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.52, "Notice what happens."),
		cand(2, types.ModalityDBT, 0.48, "Notice what happens next."),
	}}, cfg)

	// retrieval calibrates to 0.5, the rules reach about 0.71; both under 0.8
	result, err := svc.Classify(context.Background(), Request{Query: "I worry, and feel emotional, lots of emotions"})
	require.NoError(t, err)
	assertInvariants(t, cfg, result)
	assert.Equal(t, types.ModalityUnknown, result.RecommendedApproach)
	assert.InDelta(t, 0.714, result.Confidence, 0.001)
	assert.Contains(t, result.DecisionPath, types.StepFloor)
	assert.NotContains(t, result.DecisionPath, types.StepExpert)
	assert.Empty(t, result.SupportingEvidence)
	assert.Equal(t, types.ModalityDBT, result.AlternativeApproach)
}

func TestClassify_ExpertOverride(t *testing.T) {
	cfg := DefaultConfig()
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.7, "Write down the thought."),
		cand(2, types.ModalityDBT, 0.3, "Observe the breath without judgment."),
	}}, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: "I want to practice mindfulness techniques"})
	require.NoError(t, err)
	assertInvariants(t, cfg, result)
	assert.Equal(t, types.ModalityDBT, result.RecommendedApproach)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Equal(t, []types.DecisionStep{types.StepRetrieval, types.StepExpert}, result.DecisionPath)
	assert.Equal(t, []string{"Observe the breath without judgment."}, result.SupportingEvidence)
}

func TestClassify_Temperature(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Temperature = 2.0
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.9, "Notice what happens."),
	}}, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: neutral})
	require.NoError(t, err)
	// odds 19 become sqrt(19)
	assert.InDelta(t, 0.8134, result.Confidence, 0.001)
	assert.Contains(t, result.DecisionPath, types.StepTemperature)
}

func TestClassify_ClampsToConfiguredRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceMin = 0.97
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.9, "Notice what happens."),
	}}, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: neutral})
	require.NoError(t, err)
	assert.Equal(t, 0.97, result.Confidence)
}

func TestClassify_SafetyAboveLowCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfidenceMax = 0.9
	cfg.SafetyConfidence = 0.5
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityCBT, 0.9, "Notice what happens."),
	}}, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: "I want to kill myself"})
	require.NoError(t, err)
	assert.Equal(t, types.ModalityDBT, result.RecommendedApproach)
	assert.GreaterOrEqual(t, result.Confidence, 0.95)

	// other answers still respect the configured ceiling up to the safety level
	result, err = svc.Classify(context.Background(), Request{Query: neutral})
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Confidence, 0.95)
}

func TestClassify_RetrievalError(t *testing.T) {
	boom := errors.New("database is locked")
	cfg := DefaultConfig()
	svc := newTestService(&fakeRetriever{err: boom}, cfg)

	result, err := svc.Classify(context.Background(), Request{Query: cbtScenario})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.ErrorIs(t, err, boom)

	require.NotNil(t, result)
	assertInvariants(t, cfg, result)
	assert.True(t, result.Failed())
	assert.Equal(t, types.ErrorKindRetrieval, result.ErrorKind)
	assert.Equal(t, types.ModalityUnknown, result.RecommendedApproach)
	assert.Contains(t, result.ErrorDetail, "database is locked")
}

func TestClassify_UserContextEnrichesRetrievalOnly(t *testing.T) {
	r := &fakeRetriever{}
	svc := newTestService(r, DefaultConfig())

	_, err := svc.Classify(context.Background(), Request{
		Query:       cbtScenario,
		UserContext: &types.UserContext{Concerns: []string{"sleep"}, Goals: []string{"calm"}},
	})
	require.NoError(t, err)
	require.Len(t, r.queries, 1)
	assert.True(t, strings.HasPrefix(r.queries[0], cbtScenario))
	assert.Contains(t, r.queries[0], "Concerns: sleep")
	assert.Contains(t, r.queries[0], "Goals: calm")
}

func TestClassify_Idempotent(t *testing.T) {
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityDBT, 0.7, "Use the TIPP skill when emotion spikes."),
		cand(2, types.ModalityCBT, 0.4, "Write down the thought."),
	}}, DefaultConfig())

	first, err := svc.Classify(context.Background(), Request{Query: dbtScenario})
	require.NoError(t, err)
	second, err := svc.Classify(context.Background(), Request{Query: dbtScenario})
	require.NoError(t, err)

	assert.NotEqual(t, first.RequestID, second.RequestID)
	second.RequestID = first.RequestID
	assert.Equal(t, first, second)
}

func TestClassify_InvariantsAcrossQueries(t *testing.T) {
	cfg := DefaultConfig()
	svc := newTestService(&fakeRetriever{candidates: []types.CandidateMatch{
		cand(1, types.ModalityDBT, 0.5, "Emotion regulation skill."),
		cand(2, types.ModalityCBT, 0.45, "Thought record worksheet."),
	}}, cfg)

	queries := []string{
		cbtScenario, dbtScenario, neutral, "panic", "mood swings and worry",
		"I want to practice mindfulness techniques", "anxious and emotional", "x",
	}
	for _, q := range queries {
		result, err := svc.Classify(context.Background(), Request{Query: q})
		require.NoError(t, err)
		assertInvariants(t, cfg, result)
		for _, tech := range result.RecommendedTechniques {
			assert.Equal(t, result.RecommendedApproach, tech.Modality)
		}
	}
}
