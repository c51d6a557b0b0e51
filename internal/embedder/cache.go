package embedder

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores embeddings by content hash.
// Implementations are best-effort: a failed write is not an error.
type Cache interface {
	Get(ctx context.Context, hash string) (*Embedding, bool)
	Set(ctx context.Context, hash string, emb *Embedding)
}

// LRUCache provides in-memory LRU caching of embeddings by content hash
type LRUCache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewLRUCache creates a new embedding cache with LRU eviction
func NewLRUCache(maxLen int) *LRUCache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &LRUCache{cache: cache}
}

// Get retrieves a copy of an embedding so callers cannot mutate the cached vector
func (c *LRUCache) Get(_ context.Context, hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return cloneEmbedding(emb), true
}

// Set stores an embedding with automatic LRU eviction
func (c *LRUCache) Set(_ context.Context, hash string, emb *Embedding) {
	if emb == nil || emb.Degraded {
		return
	}
	c.cache.Add(hash, cloneEmbedding(emb))
}

// Size returns the current cache size
func (c *LRUCache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *LRUCache) Clear() {
	c.cache.Purge()
}

// TieredCache checks a local cache before a shared remote one and
// back-fills the local tier on remote hits.
type TieredCache struct {
	local  Cache
	remote Cache
}

// NewTieredCache combines a process-local cache with a shared cache
func NewTieredCache(local, remote Cache) *TieredCache {
	return &TieredCache{local: local, remote: remote}
}

func (t *TieredCache) Get(ctx context.Context, hash string) (*Embedding, bool) {
	if emb, ok := t.local.Get(ctx, hash); ok {
		return emb, true
	}
	emb, ok := t.remote.Get(ctx, hash)
	if !ok {
		return nil, false
	}
	t.local.Set(ctx, hash, emb)
	return emb, true
}

func (t *TieredCache) Set(ctx context.Context, hash string, emb *Embedding) {
	t.local.Set(ctx, hash, emb)
	t.remote.Set(ctx, hash, emb)
}

func cloneEmbedding(emb *Embedding) *Embedding {
	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)
	out := *emb
	out.Vector = vectorCopy
	return &out
}
