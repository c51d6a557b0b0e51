package embedder

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// embedFunc calls a provider for already-cleaned texts
type embedFunc func(ctx context.Context, texts []string, model string) ([][]float32, error)

// pipeline holds the behaviour shared by all providers: text cleaning,
// cache lookup, rate limiting and retry.
type pipeline struct {
	name      string
	model     string
	dimension int
	maxChars  int
	cache     Cache
	retry     RetryConfig
	limiter   *rate.Limiter
	logger    *slog.Logger
	call      embedFunc
}

func (p *pipeline) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *pipeline) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	hashes := make([]string, len(req.Texts))
	var missTexts []string
	var missIdx []int

	for i, text := range req.Texts {
		cleaned := CleanText(text, p.maxChars)
		if cleaned == "" {
			return nil, fmt.Errorf("%w: text at index %d is blank", ErrInvalidInput, i)
		}
		hashes[i] = ComputeHash(model + "\x00" + cleaned)
		if p.cache != nil {
			if emb, ok := p.cache.Get(ctx, hashes[i]); ok {
				embeddings[i] = emb
				continue
			}
		}
		missTexts = append(missTexts, cleaned)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := retryWithBackoff(ctx, p.retry, func(ctx context.Context) ([][]float32, error) {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return p.call(ctx, missTexts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderFailed, p.name, err)
		}
		if len(vectors) != len(missTexts) {
			return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
				ErrProviderFailed, p.name, len(vectors), len(missTexts))
		}

		for j, vec := range vectors {
			if p.dimension > 0 && len(vec) != p.dimension {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), p.dimension)
			}
			i := missIdx[j]
			emb := &Embedding{
				Vector:    vec,
				Dimension: len(vec),
				Provider:  p.name,
				Model:     model,
				Hash:      hashes[i],
			}
			if p.cache != nil {
				p.cache.Set(ctx, hashes[i], emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *pipeline) Dimension() int {
	return p.dimension
}

func (p *pipeline) Provider() string {
	return p.name
}

func (p *pipeline) Model() string {
	return p.model
}
