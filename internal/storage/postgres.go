package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/dshills/modality-router/pkg/types"
)

// PostgresConfig configures the pgvector backend. Dimension fixes the
// width of the vector column and must match the embedder.
type PostgresConfig struct {
	DSN       string
	Dimension int
	MinConns  int
	MaxConns  int
}

// PostgresStorage implements the Storage interface on PostgreSQL with pgvector
type PostgresStorage struct {
	pool      *pgxpool.Pool
	dimension int
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
    id BIGSERIAL PRIMARY KEY,
    modality TEXT NOT NULL CHECK (modality IN ('cbt', 'dbt')),
    title TEXT NOT NULL,
    source TEXT,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_modality ON documents(modality);

CREATE TABLE IF NOT EXISTS chunks (
    id BIGSERIAL PRIMARY KEY,
    document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    modality TEXT NOT NULL CHECK (modality IN ('cbt', 'dbt')),
    seq_index INTEGER NOT NULL,
    embedding vector(%d) NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
    UNIQUE(document_id, seq_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_modality ON chunks(modality);
CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN(content_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);

CREATE OR REPLACE FUNCTION chunks_immutable() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'chunks are immutable';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS chunks_immutable ON chunks;
CREATE TRIGGER chunks_immutable BEFORE UPDATE ON chunks
    FOR EACH ROW EXECUTE FUNCTION chunks_immutable();
`

// NewPostgresStorage creates the schema if needed and opens a pooled connection.
// The vector extension must exist before the pool registers its types, so
// bootstrap runs on a dedicated connection first.
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("postgres storage requires a positive vector dimension, got %d", cfg.Dimension)
	}

	if err := bootstrapPostgres(ctx, cfg); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 && cfg.MinConns <= cfg.MaxConns {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	return &PostgresStorage{pool: pool, dimension: cfg.Dimension}, nil
}

func bootstrapPostgres(ctx context.Context, cfg PostgresConfig) error {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(postgresSchema, cfg.Dimension)); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	if _, err := conn.Exec(ctx,
		"INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT (version) DO NOTHING",
		CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return nil
}

// Close releases every pooled connection
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// Document operations

func (s *PostgresStorage) AddDocument(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO documents (modality, title, source, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
		RETURNING id, created_at
	`, string(doc.Modality), doc.Title, doc.Source, meta).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, modality, title, source, metadata::text, created_at
		FROM documents
		WHERE id = $1
	`, id)
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *PostgresStorage) ListDocuments(ctx context.Context, modality types.Modality) ([]*Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, modality, title, source, metadata::text, created_at
		FROM documents
		WHERE ($1::text = '' OR modality = $1::text)
		ORDER BY id
	`, modalityFilter(modality))
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStorage) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk operations

// AddChunks queues every insert in one batch inside a transaction
func (s *PostgresStorage) AddChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		if len(c.Embedding) != s.dimension {
			return fmt.Errorf("chunk %d: embedding dimension %d, store expects %d: %w",
				i, len(c.Embedding), s.dimension, ErrInvalidDocument)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	modalities, err := s.documentModalities(ctx, tx, chunks)
	if err != nil {
		return err
	}

	resolved := make([]types.Modality, len(chunks))
	batch := &pgx.Batch{}
	for i, c := range chunks {
		m, ok := modalities[c.DocumentID]
		if !ok {
			return fmt.Errorf("chunk %d: document %d: %w", i, c.DocumentID, ErrNotFound)
		}
		if c.Modality != "" && c.Modality != m {
			return fmt.Errorf("chunk %d: modality %s differs from document %s: %w", i, c.Modality, m, ErrInvalidDocument)
		}
		resolved[i] = m
		meta, err := encodeMetadata(c.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO chunks (document_id, content, modality, seq_index, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb)
			RETURNING id, created_at
		`, c.DocumentID, c.Content, string(m), c.SeqIndex, pgvector.NewVector(c.Embedding), meta)
	}

	ids := make([]int64, len(chunks))
	created := make([]time.Time, len(chunks))
	results := tx.SendBatch(ctx, batch)
	for i, c := range chunks {
		if err := results.QueryRow().Scan(&ids[i], &created[i]); err != nil {
			_ = results.Close()
			if isPgCode(err, "23505") {
				return fmt.Errorf("chunk %d (document %d, seq %d): %w", i, c.DocumentID, c.SeqIndex, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to add chunk %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to add chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit chunks: %w", err)
	}

	for i, c := range chunks {
		c.ID = ids[i]
		c.Modality = resolved[i]
		c.CreatedAt = created[i]
	}
	return nil
}

func (s *PostgresStorage) documentModalities(ctx context.Context, tx pgx.Tx, chunks []*Chunk) (map[int64]types.Modality, error) {
	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.DocumentID)
	}
	rows, err := tx.Query(ctx, "SELECT id, modality FROM documents WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to look up documents: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]types.Modality, len(ids))
	for rows.Next() {
		var id int64
		var m string
		if err := rows.Scan(&id, &m); err != nil {
			return nil, err
		}
		out[id] = types.Modality(m)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, document_id, content, modality, seq_index, embedding, metadata::text, created_at
		FROM chunks
		WHERE id = $1
	`, id)
	chunk, err := scanPgChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *PostgresStorage) ListChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, modality, seq_index, embedding, metadata::text, created_at
		FROM chunks
		WHERE document_id = $1
		ORDER BY seq_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanPgChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Search operations

func (s *PostgresStorage) NearestNeighbors(ctx context.Context, vector []float32, modality types.Modality, limit int) ([]VectorResult, error) {
	if limit <= 0 || isZeroVector(vector) {
		return []VectorResult{}, nil
	}
	if len(vector) != s.dimension {
		return []VectorResult{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, content, modality, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE ($2::text = '' OR modality = $2::text)
		ORDER BY embedding <=> $1, id
		LIMIT $3
	`, pgvector.NewVector(vector), modalityFilter(modality), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer rows.Close()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var r VectorResult
		var m string
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &m, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Modality = types.Modality(m)
		r.Similarity = clampSimilarity(r.Similarity)
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PostgresStorage) FullTextSearch(ctx context.Context, terms []string, modality types.Modality, limit int) ([]TextResult, error) {
	query := buildTSQuery(terms)
	if limit <= 0 || query == "" {
		return []TextResult{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.content, c.modality, ts_rank_cd(c.content_tsv, q) AS score
		FROM chunks c, to_tsquery('english', $1) q
		WHERE c.content_tsv @@ q
		  AND ($2::text = '' OR c.modality = $2::text)
		ORDER BY score DESC, c.id
		LIMIT $3
	`, query, modalityFilter(modality), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute text search: %w", err)
	}
	defer rows.Close()

	results := make([]TextResult, 0, limit)
	for rows.Next() {
		var r TextResult
		var m string
		var score float32
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &m, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Modality = types.Modality(m)
		r.Score = float64(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	normalizeTextScores(results)
	return results, nil
}

var tsLexeme = regexp.MustCompile(`[^a-z0-9]+`)

// buildTSQuery turns search terms into a to_tsquery expression. Multi-word
// terms become phrase matches and terms are OR-ed together.
func buildTSQuery(terms []string) string {
	var parts []string
	for _, term := range terms {
		var words []string
		for _, w := range strings.Fields(strings.ToLower(term)) {
			if w = tsLexeme.ReplaceAllString(w, ""); w != "" {
				words = append(words, w)
			}
		}
		if len(words) > 0 {
			parts = append(parts, strings.Join(words, " <-> "))
		}
	}
	return strings.Join(parts, " | ")
}

// Status operations

func (s *PostgresStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		Backend:          "postgres",
		Dimension:        s.dimension,
		ChunksByModality: make(map[types.Modality]int),
	}

	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), '') FROM schema_version").Scan(&status.SchemaVersion); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents").Scan(&status.DocumentsCount); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, "SELECT modality, COUNT(*) FROM chunks GROUP BY modality")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		var n int
		if err := rows.Scan(&m, &n); err != nil {
			return nil, err
		}
		status.ChunksByModality[types.Modality(m)] = n
		status.ChunksCount += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var bytes int64
	if err := s.pool.QueryRow(ctx, "SELECT pg_total_relation_size('chunks')").Scan(&bytes); err == nil {
		status.IndexSizeMB = float64(bytes) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.ChunksCount > 0,
		FTSIndexesBuilt:     true,
	}
	return status, nil
}

// Helpers

func scanPgDocument(row pgx.Row) (*Document, error) {
	var doc Document
	var modality, meta string
	var source *string
	if err := row.Scan(&doc.ID, &modality, &doc.Title, &source, &meta, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Modality = types.Modality(modality)
	if source != nil {
		doc.Source = *source
	}
	md, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	doc.Metadata = md
	return &doc, nil
}

func scanPgChunk(row pgx.Row) (*Chunk, error) {
	var c Chunk
	var modality, meta string
	var vec pgvector.Vector
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Content, &modality, &c.SeqIndex, &vec, &meta, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Modality = types.Modality(modality)
	c.Embedding = vec.Slice()
	md, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	c.Metadata = md
	return &c, nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
