package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/embedder"
	"github.com/dshills/modality-router/internal/retrieval"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Server, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb := embedder.NewLocalProvider(embedder.Options{Dimension: 16})
	engine := retrieval.NewEngine(store, emb, retrieval.DefaultConfig(), nil)
	svc := classifier.NewService(classifier.Deps{Retriever: engine}, classifier.DefaultConfig())
	return NewServer(svc, store, Config{}, nil), store
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec, env := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Success", env.Message)
}

func TestClassify(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name  string
		query string
		want  types.Modality
	}{
		{"cbt", "I keep having negative thoughts and I think everyone hates me.", types.ModalityCBT},
		{"dbt", "I have trouble controlling my emotions and I get furious in seconds.", types.ModalityDBT},
		{"safety", "I want to kill myself", types.ModalityDBT},
		{"empty", "", types.ModalityUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, s, http.MethodPost, "/v1/classify", map[string]any{"query": tt.query})
			require.Equal(t, http.StatusOK, rec.Code)

			var result types.ClassificationResult
			require.NoError(t, json.Unmarshal(env.Data, &result))
			assert.Equal(t, tt.want, result.RecommendedApproach)
			assert.NotEmpty(t, result.RequestID)
		})
	}
}

func TestClassify_BadRequests(t *testing.T) {
	s, _ := newTestServer(t)

	rec, env := do(t, s, http.MethodPost, "/v1/classify", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, env.Code)

	rec, _ = do(t, s, http.MethodPost, "/v1/classify", map[string]any{
		"query":        "I feel stuck",
		"user_context": map[string]any{"previous_approach": "act"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type degradedClassifier struct{}

func (degradedClassifier) Classify(context.Context, classifier.Request) (*types.ClassificationResult, error) {
	return &types.ClassificationResult{
		RecommendedApproach: types.ModalityUnknown,
		ErrorKind:           types.ErrorKindRetrieval,
	}, classifier.ErrRetrieval
}

type brokenClassifier struct{}

func (brokenClassifier) Classify(context.Context, classifier.Request) (*types.ClassificationResult, error) {
	return nil, errors.New("boom")
}

func TestClassify_Failures(t *testing.T) {
	_, store := newTestServer(t)

	s := NewServer(degradedClassifier{}, store, Config{}, nil)
	rec, env := do(t, s, http.MethodPost, "/v1/classify", map[string]any{"query": "x"})
	require.Equal(t, http.StatusOK, rec.Code)
	var result types.ClassificationResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, types.ErrorKindRetrieval, result.ErrorKind)

	s = NewServer(brokenClassifier{}, store, Config{}, nil)
	rec, env = do(t, s, http.MethodPost, "/v1/classify", map[string]any{"query": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", env.Message)
}

func TestStatusAndDocuments(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	doc := &storage.Document{Modality: types.ModalityDBT, Title: "Distress tolerance"}
	require.NoError(t, store.AddDocument(ctx, doc))
	require.NoError(t, store.AddChunks(ctx, []*storage.Chunk{
		{DocumentID: doc.ID, Content: "Use TIPP when emotions spike.", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, store.AddDocument(ctx, &storage.Document{Modality: types.ModalityCBT, Title: "Thought records"}))

	rec, env := do(t, s, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, 2.0, status["documents_count"])
	assert.Equal(t, 1.0, status["chunks_count"])

	rec, env = do(t, s, http.MethodGet, "/v1/documents?modality=DBT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "Distress tolerance", docs[0]["title"])

	rec, _ = do(t, s, http.MethodGet, "/v1/documents?modality=act", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/v1/documents/" + strconv.FormatInt(doc.ID, 10)
	rec, _ = do(t, s, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodDelete, "/v1/documents/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := store.GetChunk(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
