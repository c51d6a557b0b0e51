package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/modality-router/internal/embedder"
	"github.com/dshills/modality-router/internal/storage"
)

var (
	ErrInvalidCorpus = errors.New("invalid corpus")
	ErrInProgress    = errors.New("ingestion already in progress")
)

// Config controls ingestion concurrency
type Config struct {
	Workers    int // concurrent batches (default: runtime.NumCPU())
	BatchSize  int // documents per batch (default: 20)
	ChunkChars int // chunk size when splitting Text (default: DefaultChunkChars)
}

// Statistics summarises one Ingest call
type Statistics struct {
	DocumentsIngested int
	DocumentsFailed   int
	ChunksCreated     int
	ChunksEmbedded    int
	Duration          time.Duration
	ErrorMessages     []string
}

// Ingester embeds and stores labelled documents
type Ingester struct {
	storage  storage.Storage
	embedder embedder.Embedder
	cfg      Config
	logger   *slog.Logger
	lock     runLock
}

// New creates an Ingester
func New(store storage.Storage, emb embedder.Embedder, cfg Config, logger *slog.Logger) *Ingester {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.ChunkChars <= 0 {
		cfg.ChunkChars = DefaultChunkChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{storage: store, embedder: emb, cfg: cfg, logger: logger}
}

// Ingest stores docs in batches. A failing document is recorded in the
// statistics and the rest continue; only cancellation aborts the run.
func (in *Ingester) Ingest(ctx context.Context, docs []DocumentInput) (*Statistics, error) {
	if !in.lock.tryAcquire() {
		return nil, ErrInProgress
	}
	defer in.lock.release()

	start := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		ingested, failed, created, embedded int32
		mu                                  sync.Mutex
	)
	recordFailure := func(doc *DocumentInput, err error) {
		atomic.AddInt32(&failed, 1)
		mu.Lock()
		stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", doc.Title, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.cfg.Workers)

	for i := 0; i < len(docs); i += in.cfg.BatchSize {
		end := min(i+in.cfg.BatchSize, len(docs))
		batch := docs[i:end]

		g.Go(func() error {
			for j := range batch {
				if err := gctx.Err(); err != nil {
					return err
				}
				n, e, err := in.ingestDocument(gctx, &batch[j])
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					recordFailure(&batch[j], err)
					continue
				}
				atomic.AddInt32(&ingested, 1)
				atomic.AddInt32(&created, int32(n))
				atomic.AddInt32(&embedded, int32(e))
			}
			return nil
		})
	}

	err := g.Wait()

	stats.DocumentsIngested = int(ingested)
	stats.DocumentsFailed = int(failed)
	stats.ChunksCreated = int(created)
	stats.ChunksEmbedded = int(embedded)
	stats.Duration = time.Since(start)

	in.logger.Info("ingestion finished",
		"documents", stats.DocumentsIngested,
		"failed", stats.DocumentsFailed,
		"chunks", stats.ChunksCreated,
		"embedded", stats.ChunksEmbedded,
		"duration", stats.Duration)

	if err != nil {
		return stats, fmt.Errorf("ingestion interrupted: %w", err)
	}
	return stats, nil
}

// ingestDocument returns the number of chunks stored and how many of them
// needed an embedding.
func (in *Ingester) ingestDocument(ctx context.Context, input *DocumentInput) (int, int, error) {
	contents, metadata := chunkContents(input, in.cfg.ChunkChars)
	if len(contents) == 0 {
		return 0, 0, fmt.Errorf("%w: document has no content", ErrInvalidCorpus)
	}

	vectors, embedded, err := in.embedMissing(ctx, input, contents)
	if err != nil {
		return 0, 0, err
	}

	doc := &storage.Document{
		Modality: input.Modality,
		Title:    input.Title,
		Source:   input.Source,
		Metadata: input.Metadata,
	}
	if err := in.storage.AddDocument(ctx, doc); err != nil {
		return 0, 0, fmt.Errorf("add document: %w", err)
	}

	chunks := make([]*storage.Chunk, len(contents))
	for i, content := range contents {
		chunks[i] = &storage.Chunk{
			DocumentID: doc.ID,
			Content:    content,
			Embedding:  vectors[i],
			SeqIndex:   i,
			Metadata:   metadata[i],
		}
	}
	if err := in.storage.AddChunks(ctx, chunks); err != nil {
		// no chunk was written, so drop the empty document
		if delErr := in.storage.DeleteDocument(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			in.logger.Warn("removing document after failed chunk insert",
				"document_id", doc.ID, "error", delErr)
		}
		return 0, 0, fmt.Errorf("add chunks: %w", err)
	}

	return len(chunks), embedded, nil
}

func chunkContents(input *DocumentInput, chunkChars int) ([]string, []map[string]string) {
	if len(input.Chunks) > 0 {
		contents := make([]string, len(input.Chunks))
		metadata := make([]map[string]string, len(input.Chunks))
		for i, c := range input.Chunks {
			contents[i] = c.Content
			metadata[i] = c.Metadata
		}
		return contents, metadata
	}
	contents := SplitText(input.Text, chunkChars)
	return contents, make([]map[string]string, len(contents))
}

// embedMissing fills vectors for chunks without a precomputed embedding,
// in provider-sized batches.
func (in *Ingester) embedMissing(ctx context.Context, input *DocumentInput, contents []string) ([][]float32, int, error) {
	vectors := make([][]float32, len(contents))
	var missing []int
	for i := range contents {
		if i < len(input.Chunks) && len(input.Chunks[i].Embedding) > 0 {
			vectors[i] = input.Chunks[i].Embedding
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += embedder.MaxBatchSize {
		idx := missing[start:min(start+embedder.MaxBatchSize, len(missing))]
		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = contents[i]
		}
		resp, err := in.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, 0, fmt.Errorf("embed chunks: %w", err)
		}
		for j, i := range idx {
			vectors[i] = resp.Embeddings[j].Vector
		}
	}
	return vectors, len(missing), nil
}
