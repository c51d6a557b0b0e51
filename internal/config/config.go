// Package config loads router settings from an optional file and MODALITY_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. MODALITY_DECISION_TEMPERATURE
const EnvPrefix = "MODALITY"

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or postgres
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MinConns int    `mapstructure:"min_conns"`
	MaxConns int    `mapstructure:"max_conns"`
}

type EmbeddingConfig struct {
	Provider       string        `mapstructure:"provider"`
	Endpoint       string        `mapstructure:"endpoint"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	Dimension      int           `mapstructure:"dimension"`
	MaxChars       int           `mapstructure:"max_chars"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
	CacheSize      int           `mapstructure:"cache_size"`
	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisTTL       time.Duration `mapstructure:"redis_ttl"`
}

type RetrievalConfig struct {
	Limit           int                `mapstructure:"limit"`
	OverFetchFactor float64            `mapstructure:"over_fetch_factor"`
	SimilarityFloor float64            `mapstructure:"similarity_floor"`
	Percentile      float64            `mapstructure:"percentile"`
	ModalityFloors  map[string]float64 `mapstructure:"modality_floors"`
	MinKeep         int                `mapstructure:"min_keep"`
	SemanticWeight  float64            `mapstructure:"semantic_weight"`
	KeywordWeight   float64            `mapstructure:"keyword_weight"`
	Rerank          bool               `mapstructure:"rerank"`
}

type DecisionConfig struct {
	MinConfidence    float64      `mapstructure:"min_confidence"`
	ConfidenceMin    float64      `mapstructure:"confidence_min"`
	ConfidenceMax    float64      `mapstructure:"confidence_max"`
	SafetyConfidence float64      `mapstructure:"safety_confidence"`
	Temperature      float64      `mapstructure:"temperature"`
	EvidenceLimit    int          `mapstructure:"evidence_limit"`
	Expert           ExpertConfig `mapstructure:"expert"`
}

type ExpertConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	ActivationThreshold float64 `mapstructure:"activation_threshold"`
	Margin              float64 `mapstructure:"margin"`
	Base                float64 `mapstructure:"base"`
	Scale               float64 `mapstructure:"scale"`
	Cap                 float64 `mapstructure:"cap"`
}

type FallbackConfig struct {
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`
	CacheSize       int     `mapstructure:"cache_size"`
}

type IngestConfig struct {
	BatchSize  int `mapstructure:"batch_size"`
	Workers    int `mapstructure:"workers"`
	ChunkChars int `mapstructure:"chunk_chars"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Default returns the configuration used when no file or environment overrides are present
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "modality-router.db",
			MinConns: 1,
			MaxConns: 4,
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			Endpoint:       "http://localhost:11434/api",
			Model:          "nomic-embed-text",
			Dimension:      768,
			MaxChars:       2000,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			BaseDelay:      200 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			RequestsPerSec: 10,
			Burst:          5,
			CacheSize:      10000,
			RedisTTL:       24 * time.Hour,
		},
		Retrieval: RetrievalConfig{
			Limit:           5,
			OverFetchFactor: 2,
			SimilarityFloor: 0.3,
			Percentile:      0.5,
			ModalityFloors:  map[string]float64{},
			MinKeep:         3,
			SemanticWeight:  0.7,
			KeywordWeight:   0.3,
			Rerank:          true,
		},
		Decision: DecisionConfig{
			MinConfidence:    0.6,
			ConfidenceMin:    0.0,
			ConfidenceMax:    0.98,
			SafetyConfidence: 0.95,
			Temperature:      1.0,
			EvidenceLimit:    3,
			Expert: ExpertConfig{
				Enabled:             true,
				ActivationThreshold: 0.3,
				Margin:              0.1,
				Base:                0.6,
				Scale:               2.0,
				Cap:                 0.9,
			},
		},
		Fallback: FallbackConfig{
			ConfidenceFloor: 0.5,
			CacheSize:       1000,
		},
		Ingest: IngestConfig{
			BatchSize:  50,
			Workers:    4,
			ChunkChars: 800,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			ServiceName: "modality-router",
			Environment: "development",
			SampleRate:  1.0,
		},
	}
}

// Load reads configuration from an optional file and the environment.
// An empty path skips the file and uses defaults plus MODALITY_* overrides.
func Load(path string) (*Config, []string, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyLegacyEnv(&cfg)

	return &cfg, cfg.Normalize(), nil
}

// LogWarnings reports normalization warnings through the given logger
func LogWarnings(logger *slog.Logger, warnings []string) {
	for _, w := range warnings {
		logger.Warn("config normalized", "detail", w)
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conns", d.Database.MaxConns)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.max_chars", d.Embedding.MaxChars)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)
	v.SetDefault("embedding.base_delay", d.Embedding.BaseDelay)
	v.SetDefault("embedding.max_delay", d.Embedding.MaxDelay)
	v.SetDefault("embedding.requests_per_sec", d.Embedding.RequestsPerSec)
	v.SetDefault("embedding.burst", d.Embedding.Burst)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.redis_addr", d.Embedding.RedisAddr)
	v.SetDefault("embedding.redis_password", d.Embedding.RedisPassword)
	v.SetDefault("embedding.redis_db", d.Embedding.RedisDB)
	v.SetDefault("embedding.redis_ttl", d.Embedding.RedisTTL)

	v.SetDefault("retrieval.limit", d.Retrieval.Limit)
	v.SetDefault("retrieval.over_fetch_factor", d.Retrieval.OverFetchFactor)
	v.SetDefault("retrieval.similarity_floor", d.Retrieval.SimilarityFloor)
	v.SetDefault("retrieval.percentile", d.Retrieval.Percentile)
	v.SetDefault("retrieval.modality_floors", d.Retrieval.ModalityFloors)
	v.SetDefault("retrieval.min_keep", d.Retrieval.MinKeep)
	v.SetDefault("retrieval.semantic_weight", d.Retrieval.SemanticWeight)
	v.SetDefault("retrieval.keyword_weight", d.Retrieval.KeywordWeight)
	v.SetDefault("retrieval.rerank", d.Retrieval.Rerank)

	v.SetDefault("decision.min_confidence", d.Decision.MinConfidence)
	v.SetDefault("decision.confidence_min", d.Decision.ConfidenceMin)
	v.SetDefault("decision.confidence_max", d.Decision.ConfidenceMax)
	v.SetDefault("decision.safety_confidence", d.Decision.SafetyConfidence)
	v.SetDefault("decision.temperature", d.Decision.Temperature)
	v.SetDefault("decision.evidence_limit", d.Decision.EvidenceLimit)
	v.SetDefault("decision.expert.enabled", d.Decision.Expert.Enabled)
	v.SetDefault("decision.expert.activation_threshold", d.Decision.Expert.ActivationThreshold)
	v.SetDefault("decision.expert.margin", d.Decision.Expert.Margin)
	v.SetDefault("decision.expert.base", d.Decision.Expert.Base)
	v.SetDefault("decision.expert.scale", d.Decision.Expert.Scale)
	v.SetDefault("decision.expert.cap", d.Decision.Expert.Cap)

	v.SetDefault("fallback.confidence_floor", d.Fallback.ConfidenceFloor)
	v.SetDefault("fallback.cache_size", d.Fallback.CacheSize)

	v.SetDefault("ingest.batch_size", d.Ingest.BatchSize)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.chunk_chars", d.Ingest.ChunkChars)

	v.SetDefault("server.addr", d.Server.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// applyLegacyEnv honours the conventional provider variables when the
// prefixed ones are not set.
func applyLegacyEnv(cfg *Config) {
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && os.Getenv(EnvPrefix+"_EMBEDDING_ENDPOINT") == "" {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		cfg.Embedding.Endpoint = strings.TrimRight(host, "/") + "/api"
	}
}
