package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modality-router/internal/embedder"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

// mockEmbedder implements the Embedder interface for testing
type mockEmbedder struct {
	generateFunc func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error)
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, req)
	}
	return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: "mock", Model: "mock-model"}, nil
}

func (m *mockEmbedder) Dimension() int   { return 3 }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock-model" }
func (m *mockEmbedder) Close() error     { return nil }

func vectorEmbedder(vec []float32) *mockEmbedder {
	return &mockEmbedder{generateFunc: func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		return &embedder.Embedding{Vector: vec, Dimension: len(vec), Provider: "mock", Model: "mock-model"}, nil
	}}
}

// failingIndex returns errors from both searches
type failingIndex struct{ err error }

func (f failingIndex) NearestNeighbors(context.Context, []float32, types.Modality, int) ([]storage.VectorResult, error) {
	return nil, f.err
}

func (f failingIndex) FullTextSearch(context.Context, []string, types.Modality, int) ([]storage.TextResult, error) {
	return nil, f.err
}

func seedIndex(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	cbt := &storage.Document{Modality: types.ModalityCBT, Title: "Cognitive restructuring"}
	dbt := &storage.Document{Modality: types.ModalityDBT, Title: "Distress tolerance"}
	require.NoError(t, store.AddDocument(ctx, cbt))
	require.NoError(t, store.AddDocument(ctx, dbt))
	require.NoError(t, store.AddChunks(ctx, []*storage.Chunk{
		{DocumentID: cbt.ID, SeqIndex: 0, Content: "Challenge negative thoughts with a thought record.", Embedding: []float32{1, 0, 0}},
		{DocumentID: dbt.ID, SeqIndex: 0, Content: "Practice distress tolerance skills when emotions surge.", Embedding: []float32{0, 1, 0}},
	}))
	return store
}

func TestExtractTerms(t *testing.T) {
	terms := ExtractTerms("I keep having negative thoughts that I can't get rid of.")
	assert.Contains(t, terms, "negative")
	assert.Contains(t, terms, "thoughts")
	assert.Contains(t, terms, "negative thoughts")
	assert.NotContains(t, terms, "keep")
	assert.NotContains(t, terms, "that")
	assert.NotContains(t, terms, "can't")
	assert.NotContains(t, terms, "i")

	// bigrams never span a removed word
	terms = ExtractTerms("anxiety and panic")
	assert.Equal(t, []string{"anxiety", "panic"}, terms)

	assert.Empty(t, ExtractTerms(""))
	assert.Empty(t, ExtractTerms("I am so"))

	long := ""
	for _, w := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel", "india", "juliet", "kilo", "lima", "mike", "november", "oscar"} {
		long += w + " "
	}
	assert.Len(t, ExtractTerms(long), MaxTerms)
}

func TestQuantile(t *testing.T) {
	assert.Equal(t, 0.0, quantile(nil, 0.5))
	assert.Equal(t, 0.7, quantile([]float64{0.7}, 0.9))
	assert.InDelta(t, 2.5, quantile([]float64{4, 1, 3, 2}, 0.5), 1e-9)
	assert.Equal(t, 1.0, quantile([]float64{4, 1, 3, 2}, 0))
	assert.Equal(t, 4.0, quantile([]float64{4, 1, 3, 2}, 1))
	assert.Equal(t, 4.0, quantile([]float64{4, 1, 3, 2}, 7))
}

func TestApplyCutoff(t *testing.T) {
	hits := []storage.VectorResult{
		{ChunkID: 1, Modality: types.ModalityCBT, Similarity: 0.9},
		{ChunkID: 2, Modality: types.ModalityDBT, Similarity: 0.6},
		{ChunkID: 3, Modality: types.ModalityCBT, Similarity: 0.4},
		{ChunkID: 4, Modality: types.ModalityDBT, Similarity: 0.2},
	}

	t.Run("adaptive cutoff", func(t *testing.T) {
		cutoff := adaptiveCutoff(hits, 0.3, 0.5)
		assert.InDelta(t, 0.5, cutoff, 1e-9)
		kept, fellBack := applyCutoff(hits, cutoff, nil, 3)
		assert.False(t, fellBack)
		require.Len(t, kept, 2)
		assert.Equal(t, int64(1), kept[0].ChunkID)
		assert.Equal(t, int64(2), kept[1].ChunkID)
	})

	t.Run("global floor wins over low quantile", func(t *testing.T) {
		assert.Equal(t, 0.95, adaptiveCutoff(hits, 0.95, 0.1))
	})

	t.Run("modality floor raises cutoff", func(t *testing.T) {
		kept, _ := applyCutoff(hits, 0.3, map[types.Modality]float64{types.ModalityDBT: 0.7}, 3)
		require.Len(t, kept, 2)
		assert.Equal(t, int64(1), kept[0].ChunkID)
		assert.Equal(t, int64(3), kept[1].ChunkID)
	})

	t.Run("empty result keeps top candidates", func(t *testing.T) {
		kept, fellBack := applyCutoff(hits, 0.99, nil, 2)
		assert.True(t, fellBack)
		require.Len(t, kept, 2)
		assert.Equal(t, int64(1), kept[0].ChunkID)
	})

	t.Run("no signal keeps nothing", func(t *testing.T) {
		kept, fellBack := applyCutoff([]storage.VectorResult{{ChunkID: 9, Similarity: 0}}, 0.3, nil, 3)
		assert.False(t, fellBack)
		assert.Empty(t, kept)
	})
}

func TestMerge(t *testing.T) {
	dense := []storage.VectorResult{
		{ChunkID: 1, Content: "both", Modality: types.ModalityCBT, Similarity: 0.8},
		{ChunkID: 2, Content: "dense", Modality: types.ModalityDBT, Similarity: 0.5},
	}
	keyword := []storage.TextResult{
		{ChunkID: 1, Content: "both", Modality: types.ModalityCBT, Score: 1.0},
		{ChunkID: 3, Content: "keyword", Modality: types.ModalityDBT, Score: 0.5},
	}

	got := merge(dense, keyword, 0.7, 0.3)
	require.Len(t, got, 3)

	assert.Equal(t, int64(1), got[0].ChunkID)
	assert.Equal(t, types.SourceHybrid, got[0].Source)
	assert.InDelta(t, 0.86, got[0].Score, 1e-9)
	assert.Equal(t, 0.8, got[0].DenseScore)
	assert.Equal(t, 1.0, got[0].KeywordScore)

	assert.Equal(t, int64(2), got[1].ChunkID)
	assert.Equal(t, types.SourceDense, got[1].Source)
	assert.Equal(t, 0.5, got[1].Score)

	assert.Equal(t, int64(3), got[2].ChunkID)
	assert.Equal(t, types.SourceKeyword, got[2].Source)
	assert.InDelta(t, 0.15, got[2].Score, 1e-9)
}

func TestRerank(t *testing.T) {
	assert.Equal(t, 0.5, termDensity("Challenge Negative beliefs", []string{"negative", "thoughts"}))
	assert.Equal(t, 0.0, termDensity("anything", nil))

	assert.Equal(t, 0.0, structuralCompleteness(""))
	short := structuralCompleteness("skill")
	long := structuralCompleteness("Notice the thought. Write down the evidence for it. Then write the evidence against it and find a balanced view.")
	assert.Greater(t, long, short)
	assert.LessOrEqual(t, long, 1.0)

	candidates := []types.CandidateMatch{
		{ChunkID: 1, Text: "unrelated", Score: 0.6},
		{ChunkID: 2, Text: "Negative thoughts can be challenged. Record them daily.", Score: 0.55},
	}
	rerank(candidates, []string{"negative", "thoughts"})
	assert.Equal(t, int64(2), candidates[0].ChunkID)
	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
}

func TestEngine_Retrieve(t *testing.T) {
	store := seedIndex(t)
	cfg := DefaultConfig()
	cfg.Rerank = false
	engine := NewEngine(store, vectorEmbedder([]float32{0.9, 0.1, 0}), cfg, nil)

	resp, err := engine.Retrieve(context.Background(), Request{Query: "negative thoughts"})
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 2, resp.DenseHits)
	assert.Equal(t, 1, resp.KeywordHits)

	require.Len(t, resp.Candidates, 1)
	top := resp.Candidates[0]
	assert.Equal(t, types.ModalityCBT, top.Modality)
	assert.Equal(t, types.SourceHybrid, top.Source)
	assert.InDelta(t, 0.7*0.9939+0.3, top.Score, 0.001)
	assert.NoError(t, top.Validate())
}

func TestEngine_ModalityFilter(t *testing.T) {
	store := seedIndex(t)
	engine := NewEngine(store, vectorEmbedder([]float32{0.9, 0.1, 0}), DefaultConfig(), nil)

	resp, err := engine.Retrieve(context.Background(), Request{Query: "negative thoughts", Modality: types.ModalityDBT})
	require.NoError(t, err)
	for _, c := range resp.Candidates {
		assert.Equal(t, types.ModalityDBT, c.Modality)
	}
}

func TestEngine_DegradedEmbedding(t *testing.T) {
	store := seedIndex(t)
	emb := &mockEmbedder{generateFunc: func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		return nil, errors.New("provider down")
	}}
	engine := NewEngine(store, emb, DefaultConfig(), nil)

	resp, err := engine.Retrieve(context.Background(), Request{Query: "distress tolerance skills"})
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, 0, resp.DenseHits)
	require.NotEmpty(t, resp.Candidates)
	assert.Equal(t, types.SourceKeyword, resp.Candidates[0].Source)
	assert.Equal(t, types.ModalityDBT, resp.Candidates[0].Modality)
}

func TestEngine_EmptyQuery(t *testing.T) {
	engine := NewEngine(failingIndex{err: errors.New("unused")}, &mockEmbedder{}, DefaultConfig(), nil)
	resp, err := engine.Retrieve(context.Background(), Request{Query: "   "})
	require.NoError(t, err)
	assert.Empty(t, resp.Candidates)
}

func TestEngine_IndexError(t *testing.T) {
	boom := errors.New("database is locked")
	engine := NewEngine(failingIndex{err: boom}, &mockEmbedder{}, DefaultConfig(), nil)

	_, err := engine.Retrieve(context.Background(), Request{Query: "negative thoughts"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestEngine_Limit(t *testing.T) {
	store := seedIndex(t)
	cfg := DefaultConfig()
	cfg.SimilarityFloor = 0
	cfg.Percentile = 0
	engine := NewEngine(store, vectorEmbedder([]float32{1, 1, 0}), cfg, nil)

	resp, err := engine.Retrieve(context.Background(), Request{Query: "thoughts emotions", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, resp.Candidates, 1)
}
