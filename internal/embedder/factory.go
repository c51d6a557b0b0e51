package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config holds embedder configuration
type Config struct {
	Provider       string
	Endpoint       string // Ollama endpoint or OpenAI-compatible base URL
	Model          string
	APIKey         string
	Dimension      int
	MaxChars       int
	Timeout        time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestsPerSec float64
	Burst          int
	CacheSize      int
	Redis          *RedisConfig // nil disables the shared cache tier
}

// New creates an embedder with explicit configuration. When Redis is
// configured but unreachable the embedder runs with the local cache only.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cache Cache
	if cfg.CacheSize > 0 {
		cache = NewLRUCache(cfg.CacheSize)
	}
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		remote, err := NewRedisCache(ctx, *cfg.Redis, logger)
		if err != nil {
			logger.Warn("shared embedding cache unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else if cache != nil {
			cache = NewTieredCache(cache, remote)
		} else {
			cache = remote
		}
	}

	retry := DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.BaseDelay > 0 {
		retry.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		retry.MaxDelay = cfg.MaxDelay
	}
	if cfg.Timeout > 0 {
		retry.AttemptTimeout = cfg.Timeout
	}

	opts := Options{
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		MaxChars:  cfg.MaxChars,
		Cache:     cache,
		Retry:     retry,
		Limiter:   NewLimiter(cfg.RequestsPerSec, cfg.Burst),
		Logger:    logger,
	}

	switch DetectProvider(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.Endpoint, opts), nil
	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		baseURL := cfg.Endpoint
		if baseURL == DefaultEndpoint {
			baseURL = ""
		}
		return NewOpenAIProvider(apiKey, baseURL, opts)
	case ProviderLocal:
		return NewLocalProvider(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider resolves the provider name. An empty name picks OpenAI
// when OPENAI_API_KEY is set and Ollama otherwise.
func DetectProvider(provider string) string {
	if provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}

// NewLimiter returns a token bucket limiter, or nil for unlimited
func NewLimiter(requestsPerSec float64, burst int) *rate.Limiter {
	if requestsPerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSec), burst)
}
