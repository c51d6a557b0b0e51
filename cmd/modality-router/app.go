package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dshills/modality-router/internal/classifier"
	"github.com/dshills/modality-router/internal/config"
	"github.com/dshills/modality-router/internal/embedder"
	"github.com/dshills/modality-router/internal/ingest"
	"github.com/dshills/modality-router/internal/observability"
	"github.com/dshills/modality-router/internal/retrieval"
	"github.com/dshills/modality-router/internal/rules"
	"github.com/dshills/modality-router/internal/storage"
	"github.com/dshills/modality-router/internal/techniques"
	"github.com/dshills/modality-router/pkg/types"
)

// app holds the components shared by every command. It is built once per
// invocation and closed on exit.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	tracing  *observability.TracerProvider
	store    storage.Storage
	embedder embedder.Embedder
	service  *classifier.Service
	ingester *ingest.Ingester
}

func newApp(ctx context.Context, path string) (*app, error) {
	cfg, warnings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, warnings)
}

func buildApp(ctx context.Context, cfg *config.Config, warnings []string) (*app, error) {
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	config.LogWarnings(logger, warnings)

	a := &app{cfg: cfg, logger: logger}

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.tracing = tp

	embCfg := embedder.Config{
		Provider:       cfg.Embedding.Provider,
		Endpoint:       cfg.Embedding.Endpoint,
		Model:          cfg.Embedding.Model,
		APIKey:         cfg.Embedding.APIKey,
		Dimension:      cfg.Embedding.Dimension,
		MaxChars:       cfg.Embedding.MaxChars,
		Timeout:        cfg.Embedding.Timeout,
		MaxRetries:     cfg.Embedding.MaxRetries,
		BaseDelay:      cfg.Embedding.BaseDelay,
		MaxDelay:       cfg.Embedding.MaxDelay,
		RequestsPerSec: cfg.Embedding.RequestsPerSec,
		Burst:          cfg.Embedding.Burst,
		CacheSize:      cfg.Embedding.CacheSize,
	}
	if cfg.Embedding.RedisAddr != "" {
		embCfg.Redis = &embedder.RedisConfig{
			Addr:     cfg.Embedding.RedisAddr,
			Password: cfg.Embedding.RedisPassword,
			DB:       cfg.Embedding.RedisDB,
			TTL:      cfg.Embedding.RedisTTL,
		}
	}
	emb, err := embedder.New(ctx, embCfg, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	a.embedder = emb

	store, err := storage.Open(ctx, storage.Options{
		Driver:    cfg.Database.Driver,
		Path:      cfg.Database.Path,
		DSN:       cfg.Database.DSN,
		MinConns:  cfg.Database.MinConns,
		MaxConns:  cfg.Database.MaxConns,
		Dimension: emb.Dimension(),
	}, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	engine := retrieval.NewEngine(store, emb, retrieval.Config{
		Limit:           cfg.Retrieval.Limit,
		OverFetchFactor: cfg.Retrieval.OverFetchFactor,
		SimilarityFloor: cfg.Retrieval.SimilarityFloor,
		Percentile:      cfg.Retrieval.Percentile,
		ModalityFloors:  modalityFloors(cfg.Retrieval.ModalityFloors, logger),
		MinKeep:         cfg.Retrieval.MinKeep,
		SemanticWeight:  cfg.Retrieval.SemanticWeight,
		KeywordWeight:   cfg.Retrieval.KeywordWeight,
		Rerank:          cfg.Retrieval.Rerank,
	}, logger)

	a.service = classifier.NewService(classifier.Deps{
		Retriever: engine,
		Safety:    rules.NewSafetyChecker(),
		Fallback:  rules.NewFallbackClassifier(cfg.Fallback.ConfidenceFloor, cfg.Fallback.CacheSize),
		Expert: rules.NewExpertRules(rules.ExpertConfig{
			Enabled:             cfg.Decision.Expert.Enabled,
			ActivationThreshold: cfg.Decision.Expert.ActivationThreshold,
			Margin:              cfg.Decision.Expert.Margin,
			Base:                cfg.Decision.Expert.Base,
			Scale:               cfg.Decision.Expert.Scale,
			Cap:                 cfg.Decision.Expert.Cap,
		}),
		Techniques: techniques.NewExtractor(techniques.DefaultMaxTechniques),
		Logger:     logger,
	}, classifier.Config{
		MinConfidence:    cfg.Decision.MinConfidence,
		ConfidenceMin:    cfg.Decision.ConfidenceMin,
		ConfidenceMax:    cfg.Decision.ConfidenceMax,
		SafetyConfidence: cfg.Decision.SafetyConfidence,
		Temperature:      cfg.Decision.Temperature,
		EvidenceLimit:    cfg.Decision.EvidenceLimit,
	})

	a.ingester = ingest.New(store, emb, ingest.Config{
		Workers:    cfg.Ingest.Workers,
		BatchSize:  cfg.Ingest.BatchSize,
		ChunkChars: cfg.Ingest.ChunkChars,
	}, logger)

	return a, nil
}

// Close releases resources in reverse order of construction
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing storage", "error", err)
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			a.logger.Warn("closing embedder", "error", err)
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("flushing traces", "error", err)
		}
	}
}

// modalityFloors converts the config map, dropping keys that are not cbt or dbt
func modalityFloors(in map[string]float64, logger *slog.Logger) map[types.Modality]float64 {
	out := make(map[types.Modality]float64, len(in))
	for name, floor := range in {
		m, err := types.ParseModality(name)
		if err != nil || !m.IsTarget() {
			logger.Warn("ignoring modality floor", "modality", name)
			continue
		}
		out[m] = floor
	}
	return out
}
