package embedder

import (
	"context"
	"log/slog"
)

// EmbedOrZero embeds text and never fails. When the provider errors after
// retries, or the text is empty, it returns a zero vector of the provider's
// dimension with Degraded set so callers can skip dense search.
func EmbedOrZero(ctx context.Context, e Embedder, text string, logger *slog.Logger) *Embedding {
	emb, err := e.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err == nil && emb != nil && len(emb.Vector) > 0 {
		return emb
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Warn("embedding degraded to zero vector",
			"provider", e.Provider(), "model", e.Model(), "error", err)
	}
	return &Embedding{
		Vector:    make([]float32, e.Dimension()),
		Dimension: e.Dimension(),
		Provider:  e.Provider(),
		Model:     e.Model(),
		Degraded:  true,
	}
}
