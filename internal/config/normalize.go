package config

import (
	"fmt"
	"strings"
)

// minSafetyConfidence is the lowest confidence a safety override may report
const minSafetyConfidence = 0.95

// Normalize repairs invalid values in place and returns a warning per repair.
// Thresholds outside [0, 1] are clamped, non-positive sizes and a
// non-positive temperature fall back to defaults.
func (c *Config) Normalize() []string {
	d := Default()
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	unit := func(name string, v *float64) {
		if *v < 0 || *v > 1 {
			clamped := clamp01(*v)
			warn("%s %.3f outside [0, 1], using %.3f", name, *v, clamped)
			*v = clamped
		}
	}
	positive := func(name string, v *int, def int) {
		if *v <= 0 {
			warn("%s %d must be positive, using %d", name, *v, def)
			*v = def
		}
	}

	// Database
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
		c.Database.Driver = strings.ToLower(c.Database.Driver)
	default:
		warn("database driver %q unsupported, using %q", c.Database.Driver, d.Database.Driver)
		c.Database.Driver = d.Database.Driver
	}
	positive("database.max_conns", &c.Database.MaxConns, d.Database.MaxConns)
	if c.Database.MinConns < 0 {
		warn("database.min_conns %d is negative, using 0", c.Database.MinConns)
		c.Database.MinConns = 0
	}
	if c.Database.MinConns > c.Database.MaxConns {
		warn("database.min_conns %d exceeds max_conns %d", c.Database.MinConns, c.Database.MaxConns)
		c.Database.MinConns = c.Database.MaxConns
	}

	// Embedding
	positive("embedding.dimension", &c.Embedding.Dimension, d.Embedding.Dimension)
	positive("embedding.max_chars", &c.Embedding.MaxChars, d.Embedding.MaxChars)
	if c.Embedding.MaxRetries < 0 {
		warn("embedding.max_retries %d is negative, using %d", c.Embedding.MaxRetries, d.Embedding.MaxRetries)
		c.Embedding.MaxRetries = d.Embedding.MaxRetries
	}
	if c.Embedding.Timeout <= 0 {
		warn("embedding.timeout must be positive, using %s", d.Embedding.Timeout)
		c.Embedding.Timeout = d.Embedding.Timeout
	}
	if c.Embedding.BaseDelay <= 0 {
		c.Embedding.BaseDelay = d.Embedding.BaseDelay
	}
	if c.Embedding.MaxDelay < c.Embedding.BaseDelay {
		warn("embedding.max_delay %s below base_delay %s", c.Embedding.MaxDelay, c.Embedding.BaseDelay)
		c.Embedding.MaxDelay = c.Embedding.BaseDelay
	}

	// Retrieval
	positive("retrieval.limit", &c.Retrieval.Limit, d.Retrieval.Limit)
	positive("retrieval.min_keep", &c.Retrieval.MinKeep, d.Retrieval.MinKeep)
	if c.Retrieval.OverFetchFactor < 1 {
		warn("retrieval.over_fetch_factor %.2f below 1, using %.2f", c.Retrieval.OverFetchFactor, d.Retrieval.OverFetchFactor)
		c.Retrieval.OverFetchFactor = d.Retrieval.OverFetchFactor
	}
	unit("retrieval.similarity_floor", &c.Retrieval.SimilarityFloor)
	unit("retrieval.percentile", &c.Retrieval.Percentile)
	unit("retrieval.semantic_weight", &c.Retrieval.SemanticWeight)
	unit("retrieval.keyword_weight", &c.Retrieval.KeywordWeight)
	for name, floor := range c.Retrieval.ModalityFloors {
		v := floor
		unit("retrieval.modality_floors."+name, &v)
		c.Retrieval.ModalityFloors[name] = v
	}

	// Decision
	unit("decision.min_confidence", &c.Decision.MinConfidence)
	unit("decision.confidence_min", &c.Decision.ConfidenceMin)
	unit("decision.confidence_max", &c.Decision.ConfidenceMax)
	unit("decision.safety_confidence", &c.Decision.SafetyConfidence)
	if c.Decision.ConfidenceMin > c.Decision.ConfidenceMax {
		warn("decision.confidence_min %.3f exceeds confidence_max %.3f, using defaults",
			c.Decision.ConfidenceMin, c.Decision.ConfidenceMax)
		c.Decision.ConfidenceMin = d.Decision.ConfidenceMin
		c.Decision.ConfidenceMax = d.Decision.ConfidenceMax
	}
	if c.Decision.SafetyConfidence < minSafetyConfidence {
		warn("decision.safety_confidence %.3f below %.2f", c.Decision.SafetyConfidence, minSafetyConfidence)
		c.Decision.SafetyConfidence = minSafetyConfidence
	}
	if c.Decision.ConfidenceMax < c.Decision.SafetyConfidence {
		warn("decision.confidence_max %.3f raised to safety confidence %.3f",
			c.Decision.ConfidenceMax, c.Decision.SafetyConfidence)
		c.Decision.ConfidenceMax = c.Decision.SafetyConfidence
	}
	if c.Decision.Temperature <= 0 {
		warn("decision.temperature %.3f must be positive, using 1.0", c.Decision.Temperature)
		c.Decision.Temperature = 1.0
	}
	positive("decision.evidence_limit", &c.Decision.EvidenceLimit, d.Decision.EvidenceLimit)
	unit("decision.expert.activation_threshold", &c.Decision.Expert.ActivationThreshold)
	unit("decision.expert.margin", &c.Decision.Expert.Margin)
	unit("decision.expert.base", &c.Decision.Expert.Base)
	unit("decision.expert.cap", &c.Decision.Expert.Cap)
	if c.Decision.Expert.Scale <= 0 {
		warn("decision.expert.scale %.3f must be positive, using %.3f", c.Decision.Expert.Scale, d.Decision.Expert.Scale)
		c.Decision.Expert.Scale = d.Decision.Expert.Scale
	}

	// Fallback
	unit("fallback.confidence_floor", &c.Fallback.ConfidenceFloor)
	positive("fallback.cache_size", &c.Fallback.CacheSize, d.Fallback.CacheSize)

	// Ingest
	positive("ingest.batch_size", &c.Ingest.BatchSize, d.Ingest.BatchSize)
	positive("ingest.workers", &c.Ingest.Workers, d.Ingest.Workers)

	// Tracing
	unit("tracing.sample_rate", &c.Tracing.SampleRate)

	return warnings
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
