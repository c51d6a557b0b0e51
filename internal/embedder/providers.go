package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultEndpoint    = "http://localhost:11434/api"

	// Dimensions
	OllamaDimension = 768
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Character budget applied by CleanText
	DefaultMaxChars = 2000

	DefaultTimeout = 30 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 200
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Options are the settings shared by every provider constructor
type Options struct {
	Model     string
	Dimension int
	MaxChars  int
	Cache     Cache
	Retry     RetryConfig
	Limiter   *rate.Limiter
	Logger    *slog.Logger
}

func (o Options) pipeline(name, defaultModel string, defaultDim int, call embedFunc) *pipeline {
	p := &pipeline{
		name:      name,
		model:     o.Model,
		dimension: o.Dimension,
		maxChars:  o.MaxChars,
		cache:     o.Cache,
		retry:     o.Retry,
		limiter:   o.Limiter,
		logger:    o.Logger,
		call:      call,
	}
	if p.model == "" {
		p.model = defaultModel
	}
	if p.dimension <= 0 {
		p.dimension = defaultDim
	}
	if p.maxChars <= 0 {
		p.maxChars = DefaultMaxChars
	}
	if p.retry == (RetryConfig{}) {
		p.retry = DefaultRetryConfig()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// OllamaProvider calls POST {endpoint}/embeddings with {model, prompt}
type OllamaProvider struct {
	*pipeline
	endpoint   string
	httpClient *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaProvider creates an embedder for an Ollama-compatible endpoint
func NewOllamaProvider(endpoint string, opts Options) *OllamaProvider {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	o := &OllamaProvider{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{},
	}
	o.pipeline = opts.pipeline(ProviderOllama, DefaultOllamaModel, OllamaDimension, o.callAPI)
	return o
}

// callAPI embeds texts one request at a time; the API has no batch form
func (o *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.embedOne(ctx, text, model)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (o *OllamaProvider) embedOne(ctx context.Context, text, model string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var apiResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Embedding) == 0 {
		return nil, errors.New("empty embedding in response")
	}

	vec := make([]float32, len(apiResp.Embedding))
	for i, v := range apiResp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	*pipeline
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI embedder.
// baseURL may point at any OpenAI-compatible server.
func NewOpenAIProvider(apiKey, baseURL string, opts Options) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not set", ErrNoProviderEnabled)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // retries are handled by the pipeline
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	o := &OpenAIProvider{client: openai.NewClient(reqOpts...)}
	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	o.pipeline = opts.pipeline(ProviderOpenAI, DefaultOpenAIModel, openAIDimension(model), o.callAPI)
	return o, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("api call: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(texts) {
			return nil, fmt.Errorf("response index %d out of range", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

func (o *OpenAIProvider) Close() error {
	return nil
}

func openAIDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return OpenAIDimension
	}
}

// LocalProvider produces deterministic feature-hashed embeddings offline.
// Texts sharing words get similar vectors, which is enough for tests and
// air-gapped demos but not for production routing.
type LocalProvider struct {
	*pipeline
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(opts Options) *LocalProvider {
	l := &LocalProvider{}
	opts.Limiter = nil
	l.pipeline = opts.pipeline(ProviderLocal, "local-hashing", LocalDimension, l.callAPI)
	return l
}

func (l *LocalProvider) callAPI(_ context.Context, texts []string, _ string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = HashEmbedding(text, l.dimension)
	}
	return vectors, nil
}

func (l *LocalProvider) Close() error {
	return nil
}

// HashEmbedding maps each lower-cased word to a signed bucket and returns
// the unit-length sum.
func HashEmbedding(text string, dimension int) []float32 {
	vector := make([]float32, dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := sha256.Sum256([]byte(w))
		idx := binary.LittleEndian.Uint32(h[:4]) % uint32(dimension)
		if h[4]&1 == 0 {
			vector[idx]++
		} else {
			vector[idx]--
		}
	}
	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
