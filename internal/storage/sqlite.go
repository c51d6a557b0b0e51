package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/modality-router/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// PoolConfig bounds the connection pool. SQLite allows a single writer,
// so MaxConns above one only helps concurrent readers in WAL mode.
type PoolConfig struct {
	MinConns int
	MaxConns int
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Each connection to :memory: is a separate database
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") || pool.MaxConns <= 0 {
		pool = PoolConfig{MinConns: 1, MaxConns: 1}
	}
	db.SetMaxOpenConns(pool.MaxConns)
	db.SetMaxIdleConns(max(pool.MinConns, 1))
	db.SetConnMaxLifetime(0)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// busy_timeout and foreign_keys are per connection, so they go in the DSN
	// for pooled databases. The explicit pragma covers the single-connection case.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance with a single connection
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithPool(dbPath, PoolConfig{MinConns: 1, MaxConns: 1})
}

// NewSQLiteStorageWithPool creates a SQLite storage with a bounded pool.
// Pooled file databases get per-connection pragmas through the DSN.
func NewSQLiteStorageWithPool(dbPath string, pool PoolConfig) (*SQLiteStorage, error) {
	dsn := dbPath
	if pool.MaxConns > 1 && dbPath != ":memory:" {
		dsn = withConnectionPragmas(dbPath)
	}
	db, err := openDatabase(dsn, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, committing on success and rolling back
// on every other exit path.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Document operations

func (s *SQLiteStorage) AddDocument(ctx context.Context, doc *Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (modality, title, source, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(doc.Modality), doc.Title, doc.Source, meta, now)
	if err != nil {
		return fmt.Errorf("failed to add document: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	doc.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, modality, title, source, metadata, created_at
		FROM documents
		WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context, modality types.Modality) ([]*Document, error) {
	filter := modalityFilter(modality)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, modality, title, source, metadata, created_at
		FROM documents
		WHERE (? = '' OR modality = ?)
		ORDER BY id
	`, filter, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks go with it via ON DELETE CASCADE
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Chunk operations

// AddChunks inserts chunks in a single transaction. Either every chunk
// is stored or none are.
func (s *SQLiteStorage) AddChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
	}

	// caller chunks are only updated once the transaction commits
	ids := make([]int64, len(chunks))
	resolved := make([]types.Modality, len(chunks))
	now := time.Now()
	err := s.withTx(ctx, func(q querier) error {
		modalities := make(map[int64]types.Modality)
		stmt := `
			INSERT INTO chunks (document_id, content, modality, seq_index, embedding, dimension, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`
		for i, c := range chunks {
			modality, err := parentModality(ctx, q, modalities, c.DocumentID)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if c.Modality != "" && c.Modality != modality {
				return fmt.Errorf("chunk %d: modality %s differs from document %s: %w",
					i, c.Modality, modality, ErrInvalidDocument)
			}
			meta, err := encodeMetadata(c.Metadata)
			if err != nil {
				return err
			}

			result, err := q.ExecContext(ctx, stmt,
				c.DocumentID, c.Content, string(modality), c.SeqIndex,
				serializeVector(c.Embedding), len(c.Embedding), meta, now)
			if err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("chunk %d (document %d, seq %d): %w", i, c.DocumentID, c.SeqIndex, ErrAlreadyExists)
				}
				return fmt.Errorf("failed to add chunk %d: %w", i, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return err
			}
			ids[i] = id
			resolved[i] = modality
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i, c := range chunks {
		c.ID = ids[i]
		c.Modality = resolved[i]
		c.CreatedAt = now
	}
	return nil
}

// parentModality looks up (and memoizes) the modality of a chunk's document
func parentModality(ctx context.Context, q querier, seen map[int64]types.Modality, documentID int64) (types.Modality, error) {
	if m, ok := seen[documentID]; ok {
		return m, nil
	}
	var m string
	err := q.QueryRowContext(ctx, "SELECT modality FROM documents WHERE id = ?", documentID).Scan(&m)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("document %d: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	seen[documentID] = types.Modality(m)
	return types.Modality(m), nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, content, modality, seq_index, embedding, metadata, created_at
		FROM chunks
		WHERE id = ?
	`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return chunk, err
}

func (s *SQLiteStorage) ListChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, content, modality, seq_index, embedding, metadata, created_at
		FROM chunks
		WHERE document_id = ?
		ORDER BY seq_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Search operations

func (s *SQLiteStorage) NearestNeighbors(ctx context.Context, vector []float32, modality types.Modality, limit int) ([]VectorResult, error) {
	return searchVector(ctx, s.db, vector, modalityFilter(modality), limit)
}

func (s *SQLiteStorage) FullTextSearch(ctx context.Context, terms []string, modality types.Modality, limit int) ([]TextResult, error) {
	return searchText(ctx, s.db, terms, modalityFilter(modality), limit)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		Backend:          "sqlite-" + BuildMode,
		ChunksByModality: make(map[types.Modality]int),
	}

	version, err := currentSchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&status.DocumentsCount); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT modality, COUNT(*), MAX(dimension) FROM chunks GROUP BY modality")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var m string
		var n, dim int
		if err := rows.Scan(&m, &n, &dim); err != nil {
			return nil, err
		}
		status.ChunksByModality[types.Modality(m)] = n
		status.ChunksCount += n
		status.Dimension = max(status.Dimension, dim)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.ChunksCount > 0,
		FTSIndexesBuilt:     true, // created by migrations
	}
	return status, nil
}

// Helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var modality, meta string
	var source sql.NullString
	if err := row.Scan(&doc.ID, &modality, &doc.Title, &source, &meta, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Modality = types.Modality(modality)
	doc.Source = source.String
	md, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	doc.Metadata = md
	return &doc, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var modality, meta string
	var blob []byte
	if err := row.Scan(&c.ID, &c.DocumentID, &c.Content, &modality, &c.SeqIndex, &blob, &meta, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Modality = types.Modality(modality)
	c.Embedding = deserializeVector(blob)
	md, err := decodeMetadata(meta)
	if err != nil {
		return nil, err
	}
	c.Metadata = md
	return &c, nil
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return map[string]string{}, nil
	}
	m := make(map[string]string)
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withConnectionPragmas appends per-connection pragmas in the DSN syntax
// of the active driver.
func withConnectionPragmas(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if DriverName == "sqlite" {
		return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}
