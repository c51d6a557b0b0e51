package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/modality-router/internal/embedder"
	"github.com/dshills/modality-router/internal/observability"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/pkg/types"
)

// Index is the subset of storage the engine queries
type Index interface {
	NearestNeighbors(ctx context.Context, vector []float32, modality types.Modality, limit int) ([]storage.VectorResult, error)
	FullTextSearch(ctx context.Context, terms []string, modality types.Modality, limit int) ([]storage.TextResult, error)
}

// Config tunes candidate selection and scoring
type Config struct {
	Limit           int
	OverFetchFactor float64
	SimilarityFloor float64
	Percentile      float64
	ModalityFloors  map[types.Modality]float64
	MinKeep         int
	SemanticWeight  float64
	KeywordWeight   float64
	Rerank          bool
}

// DefaultConfig returns the standard retrieval settings
func DefaultConfig() Config {
	return Config{
		Limit:           5,
		OverFetchFactor: 2,
		SimilarityFloor: 0.3,
		Percentile:      0.5,
		ModalityFloors:  map[types.Modality]float64{},
		MinKeep:         3,
		SemanticWeight:  0.7,
		KeywordWeight:   0.3,
		Rerank:          true,
	}
}

// Request describes one retrieval
type Request struct {
	Query    string
	Modality types.Modality // optional filter; unknown searches both
	Limit    int            // optional; defaults to Config.Limit
}

// Response contains ranked candidates and how they were found
type Response struct {
	Candidates   []types.CandidateMatch
	Terms        []string
	Cutoff       float64
	DenseHits    int
	KeywordHits  int
	KeptFallback bool // the cutoff removed every dense hit and the top ones were kept anyway
	Degraded     bool // the query embedding was unavailable, dense search was skipped
	Duration     time.Duration
}

// Engine runs dense and keyword search and merges the results
type Engine struct {
	index    Index
	embedder embedder.Embedder
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine
func NewEngine(index Index, emb embedder.Embedder, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if cfg.OverFetchFactor < 1 {
		cfg.OverFetchFactor = 1
	}
	return &Engine{index: index, embedder: emb, cfg: cfg, logger: logger}
}

// Config returns the engine settings
func (e *Engine) Config() Config {
	return e.cfg
}

// Retrieve returns candidates for a query, best first. An empty query
// returns no candidates. Index errors are returned to the caller.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp := &Response{Candidates: []types.CandidateMatch{}}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return resp, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.Limit
	}
	pool := int(math.Ceil(float64(limit) * e.cfg.OverFetchFactor))
	resp.Terms = ExtractTerms(query)

	ctx, span := observability.StartSpan(ctx, "retrieval.Retrieve",
		attribute.Int("limit", limit),
		attribute.Int("terms", len(resp.Terms)),
	)
	defer span.End()

	var dense []storage.VectorResult
	var keyword []storage.TextResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if e.embedder == nil {
			resp.Degraded = true
			return nil
		}
		emb := embedder.EmbedOrZero(gctx, e.embedder, query, e.logger)
		if emb.Degraded || emb.IsZero() {
			resp.Degraded = true
			return nil
		}
		hits, err := e.index.NearestNeighbors(gctx, emb.Vector, req.Modality, pool)
		if err != nil {
			return fmt.Errorf("dense search: %w", err)
		}
		dense = hits
		return nil
	})
	g.Go(func() error {
		if len(resp.Terms) == 0 {
			return nil
		}
		hits, err := e.index.FullTextSearch(gctx, resp.Terms, req.Modality, pool)
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		keyword = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	resp.DenseHits = len(dense)
	resp.KeywordHits = len(keyword)
	if len(dense) > 0 {
		resp.Cutoff = adaptiveCutoff(dense, e.cfg.SimilarityFloor, e.cfg.Percentile)
		dense, resp.KeptFallback = applyCutoff(dense, resp.Cutoff, e.cfg.ModalityFloors, e.cfg.MinKeep)
	}

	candidates := merge(dense, keyword, e.cfg.SemanticWeight, e.cfg.KeywordWeight)
	if e.cfg.Rerank {
		rerank(candidates, resp.Terms)
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	resp.Candidates = candidates
	resp.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("dense_hits", resp.DenseHits),
		attribute.Int("keyword_hits", resp.KeywordHits),
		attribute.Int("candidates", len(candidates)),
		attribute.Bool("degraded", resp.Degraded),
	)
	e.logger.Debug("retrieval complete",
		"dense", resp.DenseHits, "keyword", resp.KeywordHits,
		"kept", len(candidates), "cutoff", resp.Cutoff,
		"degraded", resp.Degraded, "duration", resp.Duration)

	return resp, nil
}
