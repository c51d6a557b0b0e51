// Package embedder turns query and corpus text into vectors.
//
// Three providers are available: an Ollama-compatible HTTP endpoint
// (POST {endpoint}/embeddings with {model, prompt}), the OpenAI embeddings
// API, and a deterministic local hashing model for offline use.
//
// Every provider shares one pipeline:
//
//  1. Text is cleaned with CleanText: whitespace collapsed, truncated to the
//     character budget at a sentence boundary where possible.
//  2. The cleaned text is hashed (SHA-256) and looked up in the cache, an
//     in-process LRU optionally backed by Redis.
//  3. Misses are sent to the provider under a token bucket rate limit with
//     jittered exponential backoff. Only transient failures (network errors,
//     timeouts, HTTP 429 and 5xx) are retried.
//
// Callers that must never fail use EmbedOrZero, which substitutes a zero
// vector flagged Degraded:
//
//	emb := embedder.EmbedOrZero(ctx, e, query, logger)
//	if emb.Degraded {
//	    // skip dense search, rely on keyword search and rules
//	}
package embedder
