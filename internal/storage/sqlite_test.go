package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modality-router/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func addDoc(t *testing.T, s Storage, m types.Modality, title string) *Document {
	t.Helper()
	doc := &Document{Modality: m, Title: title, Source: "test", Metadata: map[string]string{"author": "tester"}}
	require.NoError(t, s.AddDocument(context.Background(), doc))
	return doc
}

func addChunk(t *testing.T, s Storage, doc *Document, seq int, content string, vec []float32) *Chunk {
	t.Helper()
	c := &Chunk{DocumentID: doc.ID, SeqIndex: seq, Content: content, Embedding: vec}
	require.NoError(t, s.AddChunks(context.Background(), []*Chunk{c}))
	return c
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	status, err := storage.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, 0, status.ChunksCount)
}

func TestAddDocument(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := addDoc(t, storage, types.ModalityCBT, "Cognitive restructuring")
	assert.Greater(t, doc.ID, int64(0))
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ModalityCBT, got.Modality)
	assert.Equal(t, "Cognitive restructuring", got.Title)
	assert.Equal(t, "tester", got.Metadata["author"])
}

func TestAddDocument_Invalid(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	err := storage.AddDocument(ctx, &Document{Modality: types.ModalityUnknown, Title: "x"})
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.ErrorIs(t, err, types.ErrInvalidModality)

	err = storage.AddDocument(ctx, &Document{Modality: types.ModalityDBT})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestGetDocument_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.GetDocument(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDocuments(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	addDoc(t, storage, types.ModalityCBT, "a")
	addDoc(t, storage, types.ModalityDBT, "b")
	addDoc(t, storage, types.ModalityDBT, "c")

	all, err := storage.ListDocuments(ctx, types.ModalityUnknown)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	dbt, err := storage.ListDocuments(ctx, types.ModalityDBT)
	require.NoError(t, err)
	require.Len(t, dbt, 2)
	assert.Equal(t, "b", dbt[0].Title)
	assert.Equal(t, "c", dbt[1].Title)
}

func TestDeleteDocument_CascadesToChunks(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := addDoc(t, storage, types.ModalityDBT, "Distress tolerance")
	c := addChunk(t, storage, doc, 0, "Use TIPP skills when distress peaks", []float32{1, 0, 0})

	require.NoError(t, storage.DeleteDocument(ctx, doc.ID))

	_, err := storage.GetChunk(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	hits, err := storage.FullTextSearch(ctx, []string{"distress"}, types.ModalityUnknown, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, storage.DeleteDocument(ctx, doc.ID), ErrNotFound)
}

func TestAddChunks_InheritsModality(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	doc := addDoc(t, storage, types.ModalityDBT, "Mindfulness")
	c := addChunk(t, storage, doc, 0, "Observe the breath without judgment", []float32{0.1, 0.2, 0.3})
	assert.Equal(t, types.ModalityDBT, c.Modality)

	got, err := storage.GetChunk(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ModalityDBT, got.Modality)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, "Observe the breath without judgment", got.Content)
}

func TestAddChunks_ModalityMismatch(t *testing.T) {
	storage := setupTestDB(t)
	doc := addDoc(t, storage, types.ModalityDBT, "Mindfulness")

	err := storage.AddChunks(context.Background(), []*Chunk{{
		DocumentID: doc.ID, Content: "x", Embedding: []float32{1}, Modality: types.ModalityCBT,
	}})
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestAddChunks_Atomic(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()
	doc := addDoc(t, storage, types.ModalityCBT, "Thought records")

	t.Run("missing document rolls back batch", func(t *testing.T) {
		err := storage.AddChunks(ctx, []*Chunk{
			{DocumentID: doc.ID, SeqIndex: 0, Content: "first", Embedding: []float32{1, 0}},
			{DocumentID: 9999, SeqIndex: 0, Content: "orphan", Embedding: []float32{0, 1}},
		})
		assert.ErrorIs(t, err, ErrNotFound)

		chunks, err := storage.ListChunksByDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("duplicate sequence rolls back batch", func(t *testing.T) {
		batch := []*Chunk{
			{DocumentID: doc.ID, SeqIndex: 0, Content: "first", Embedding: []float32{1, 0}},
			{DocumentID: doc.ID, SeqIndex: 0, Content: "again", Embedding: []float32{0, 1}},
		}
		err := storage.AddChunks(ctx, batch)
		assert.ErrorIs(t, err, ErrAlreadyExists)

		chunks, err := storage.ListChunksByDocument(ctx, doc.ID)
		require.NoError(t, err)
		assert.Empty(t, chunks)

		// rolled back chunks are left as the caller passed them
		for _, c := range batch {
			assert.Zero(t, c.ID)
			assert.Empty(t, c.Modality)
			assert.True(t, c.CreatedAt.IsZero())
		}
	})

	t.Run("valid batch stored in order", func(t *testing.T) {
		err := storage.AddChunks(ctx, []*Chunk{
			{DocumentID: doc.ID, SeqIndex: 1, Content: "second", Embedding: []float32{0, 1}},
			{DocumentID: doc.ID, SeqIndex: 0, Content: "first", Embedding: []float32{1, 0}},
		})
		require.NoError(t, err)

		chunks, err := storage.ListChunksByDocument(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "first", chunks[0].Content)
		assert.Equal(t, "second", chunks[1].Content)
	})
}

func TestAddChunks_Validation(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		chunk *Chunk
	}{
		{"no document", &Chunk{Content: "x", Embedding: []float32{1}}},
		{"empty content", &Chunk{DocumentID: 1, Embedding: []float32{1}}},
		{"no embedding", &Chunk{DocumentID: 1, Content: "x"}},
		{"bad modality", &Chunk{DocumentID: 1, Content: "x", Embedding: []float32{1}, Modality: "act"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.AddChunks(ctx, []*Chunk{tt.chunk})
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}

	assert.NoError(t, storage.AddChunks(ctx, nil))
}

func TestChunksAreImmutable(t *testing.T) {
	storage := setupTestDB(t)
	doc := addDoc(t, storage, types.ModalityCBT, "Immutability")
	c := addChunk(t, storage, doc, 0, "original", []float32{1, 0})

	_, err := storage.db.ExecContext(context.Background(), "UPDATE chunks SET content = 'changed' WHERE id = ?", c.ID)
	assert.Error(t, err)

	got, err := storage.GetChunk(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
}

func TestNearestNeighbors(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	cbt := addDoc(t, storage, types.ModalityCBT, "cbt")
	dbt := addDoc(t, storage, types.ModalityDBT, "dbt")
	near := addChunk(t, storage, cbt, 0, "near", []float32{1, 0.1, 0})
	far := addChunk(t, storage, cbt, 1, "far", []float32{0, 1, 0})
	opposed := addChunk(t, storage, dbt, 0, "opposed", []float32{-1, 0, 0})
	addChunk(t, storage, dbt, 1, "other dimension", []float32{1, 0})

	t.Run("ordered by similarity", func(t *testing.T) {
		hits, err := storage.NearestNeighbors(ctx, []float32{1, 0, 0}, types.ModalityUnknown, 10)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, near.ID, hits[0].ChunkID)
		assert.Equal(t, types.ModalityCBT, hits[0].Modality)
		assert.InDelta(t, 0.995, hits[0].Similarity, 0.01)
		assert.Equal(t, far.ID, hits[1].ChunkID)
		assert.Equal(t, opposed.ID, hits[2].ChunkID)
		// opposed vectors clamp to zero
		assert.Equal(t, 0.0, hits[2].Similarity)
	})

	t.Run("modality filter", func(t *testing.T) {
		hits, err := storage.NearestNeighbors(ctx, []float32{1, 0, 0}, types.ModalityDBT, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, opposed.ID, hits[0].ChunkID)
	})

	t.Run("limit", func(t *testing.T) {
		hits, err := storage.NearestNeighbors(ctx, []float32{1, 0, 0}, types.ModalityUnknown, 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, near.ID, hits[0].ChunkID)
	})

	t.Run("zero vector and zero limit", func(t *testing.T) {
		hits, err := storage.NearestNeighbors(ctx, []float32{0, 0, 0}, types.ModalityUnknown, 5)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = storage.NearestNeighbors(ctx, []float32{1, 0, 0}, types.ModalityUnknown, 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestFullTextSearch(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	cbt := addDoc(t, storage, types.ModalityCBT, "cbt")
	dbt := addDoc(t, storage, types.ModalityDBT, "dbt")
	thoughts := addChunk(t, storage, cbt, 0, "Challenge negative thoughts with a thought record", []float32{1, 0})
	addChunk(t, storage, cbt, 1, "Schedule pleasant activities each day", []float32{1, 0})
	emotions := addChunk(t, storage, dbt, 0, "Emotion regulation skills reduce emotional intensity", []float32{0, 1})

	t.Run("stemmed match", func(t *testing.T) {
		hits, err := storage.FullTextSearch(ctx, []string{"thought"}, types.ModalityUnknown, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, thoughts.ID, hits[0].ChunkID)
		assert.Equal(t, 1.0, hits[0].Score)
	})

	t.Run("phrase term", func(t *testing.T) {
		hits, err := storage.FullTextSearch(ctx, []string{"negative thoughts"}, types.ModalityUnknown, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, thoughts.ID, hits[0].ChunkID)

		hits, err = storage.FullTextSearch(ctx, []string{"thoughts negative"}, types.ModalityUnknown, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("terms are or-ed and normalized", func(t *testing.T) {
		hits, err := storage.FullTextSearch(ctx, []string{"thought", "emotion"}, types.ModalityUnknown, 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, 1.0, hits[0].Score)
		for _, h := range hits {
			assert.Greater(t, h.Score, 0.0)
			assert.LessOrEqual(t, h.Score, 1.0)
		}
	})

	t.Run("modality filter", func(t *testing.T) {
		hits, err := storage.FullTextSearch(ctx, []string{"thought", "emotion"}, types.ModalityDBT, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, emotions.ID, hits[0].ChunkID)
	})

	t.Run("query syntax is literal", func(t *testing.T) {
		hits, err := storage.FullTextSearch(ctx, []string{`thought" OR "day`, "NEAR("}, types.ModalityUnknown, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("no terms", func(t *testing.T) {
		hits, err := storage.FullTextSearch(ctx, nil, types.ModalityUnknown, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	cbt := addDoc(t, storage, types.ModalityCBT, "cbt")
	dbt := addDoc(t, storage, types.ModalityDBT, "dbt")
	addChunk(t, storage, cbt, 0, "one", []float32{1, 0, 0})
	addChunk(t, storage, cbt, 1, "two", []float32{0, 1, 0})
	addChunk(t, storage, dbt, 0, "three", []float32{0, 0, 1})

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite-"+BuildMode, status.Backend)
	assert.Equal(t, 2, status.DocumentsCount)
	assert.Equal(t, 3, status.ChunksCount)
	assert.Equal(t, 2, status.ChunksByModality[types.ModalityCBT])
	assert.Equal(t, 1, status.ChunksByModality[types.ModalityDBT])
	assert.Equal(t, 3, status.Dimension)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.EmbeddingsAvailable)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Driver: "sqlite", Path: ":memory:"}, nil)
	require.NoError(t, err)
	_, ok := s.(*SQLiteStorage)
	assert.True(t, ok)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Driver: "mongo"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, Options{Driver: "postgres"}, nil)
	assert.Error(t, err)
}

func TestWithConnectionPragmas(t *testing.T) {
	got := withConnectionPragmas("corpus.db")
	assert.Contains(t, got, "corpus.db?")
	assert.Contains(t, got, "busy_timeout")

	got = withConnectionPragmas("file:corpus.db?cache=shared")
	assert.Contains(t, got, "cache=shared&")
}
