package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/modality-router/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidDocument is returned for documents or chunks failing validation
	ErrInvalidDocument = errors.New("invalid document")
)

// Storage persists the reference corpus and answers similarity queries.
// A zero or unknown modality filter matches every modality.
type Storage interface {
	// Document operations
	AddDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context, modality types.Modality) ([]*Document, error)
	DeleteDocument(ctx context.Context, id int64) error

	// Chunk operations. AddChunks writes all chunks in one transaction.
	AddChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id int64) (*Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID int64) ([]*Chunk, error)

	// Search operations
	NearestNeighbors(ctx context.Context, vector []float32, modality types.Modality, limit int) ([]VectorResult, error)
	FullTextSearch(ctx context.Context, terms []string, modality types.Modality, limit int) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	Close() error
}

var (
	_ Storage = (*SQLiteStorage)(nil)
	_ Storage = (*PostgresStorage)(nil)
)

// Document is a reference text labelled with the modality it teaches
type Document struct {
	ID        int64
	Modality  types.Modality
	Title     string
	Source    string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Validate checks the document before it is stored
func (d *Document) Validate() error {
	if !d.Modality.IsTarget() {
		return errors.Join(ErrInvalidDocument, types.ErrInvalidModality)
	}
	if d.Title == "" {
		return errors.Join(ErrInvalidDocument, errors.New("title is required"))
	}
	return nil
}

// Chunk is an immutable span of a document with its embedding.
// Modality is copied from the parent document when left empty.
type Chunk struct {
	ID         int64
	DocumentID int64
	Content    string
	Embedding  []float32
	Modality   types.Modality
	SeqIndex   int
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Validate checks the chunk before it is stored
func (c *Chunk) Validate() error {
	if c.DocumentID == 0 {
		return errors.Join(ErrInvalidDocument, errors.New("chunk has no document"))
	}
	if c.Content == "" {
		return errors.Join(ErrInvalidDocument, types.ErrEmptyContent)
	}
	if len(c.Embedding) == 0 {
		return errors.Join(ErrInvalidDocument, errors.New("chunk has no embedding"))
	}
	if c.Modality != "" && !c.Modality.IsTarget() {
		return errors.Join(ErrInvalidDocument, types.ErrInvalidModality)
	}
	return nil
}

// VectorResult represents a result from vector similarity search.
// Similarity is cosine similarity with negative values clamped to 0.
type VectorResult struct {
	ChunkID    int64
	DocumentID int64
	Content    string
	Modality   types.Modality
	Similarity float64
}

// TextResult represents a result from full-text search.
// Score is the lexical rank normalized so the best hit in the set is 1.
type TextResult struct {
	ChunkID    int64
	DocumentID int64
	Content    string
	Modality   types.Modality
	Score      float64
}

// Status contains statistics about the stored corpus
type Status struct {
	Backend          string
	SchemaVersion    string
	DocumentsCount   int
	ChunksCount      int
	ChunksByModality map[types.Modality]int
	Dimension        int
	IndexSizeMB      float64
	Health           HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}

func modalityFilter(m types.Modality) string {
	if m.IsTarget() {
		return string(m)
	}
	return ""
}
