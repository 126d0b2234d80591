package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache is an in-memory map from text (keyed by SHA-256) to its embedding
// vector. Documentation corpora repeat snippets across files, so a rebuild
// can ask for the same embedding many times.
type Cache struct {
	mu      sync.RWMutex
	entries map[string][]float32
	order   []string
	maxSize int
}

// NewCache creates a Cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Cache{
		entries: make(map[string][]float32),
		maxSize: maxSize,
	}
}

// Key generates a cache key for the given text using SHA-256.
func (c *Cache) Key(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Get retrieves an embedding from the cache.
func (c *Cache) Get(text string) ([]float32, bool) {
	key := c.Key(text)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	// Return a copy to prevent external modification
	result := make([]float32, len(entry))
	copy(result, entry)
	return result, true
}

// Set stores an embedding in the cache, evicting the oldest entries when
// the cache is full.
func (c *Cache) Set(text string, vector []float32) {
	key := c.Key(text)

	vectorCopy := make([]float32, len(vector))
	copy(vectorCopy, vector)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxSize && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}

	c.entries[key] = vectorCopy
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CachedProvider wraps an embedding provider with a Cache.
type CachedProvider struct {
	inner Provider
	cache *Cache
}

// WithCache wraps a Provider with an embedding cache of the given capacity.
func WithCache(p Provider, cacheSize int) Provider {
	return &CachedProvider{
		inner: p,
		cache: NewCache(cacheSize),
	}
}

// Embed generates an embedding for the given text, using the cache if possible.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, found := c.cache.Get(text); found {
		return cached, nil
	}

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, embedding)
	return embedding, nil
}

// EmbedBatch generates embeddings for multiple texts, using the cache where
// possible and delegating the rest to the inner provider.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	uncachedIndices := make([]int, 0, len(texts))
	uncachedTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		if cached, found := c.cache.Get(text); found {
			results[i] = cached
		} else {
			uncachedIndices = append(uncachedIndices, i)
			uncachedTexts = append(uncachedTexts, text)
		}
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, uncachedTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range uncachedIndices {
		results[idx] = fresh[j]
		c.cache.Set(uncachedTexts[j], fresh[j])
	}

	return results, nil
}

// Model returns the inner provider's model name.
func (c *CachedProvider) Model() string {
	return c.inner.Model()
}

// Dimensions returns the inner provider's vector dimensions.
func (c *CachedProvider) Dimensions() int {
	return c.inner.Dimensions()
}

// Ping delegates to the inner provider.
func (c *CachedProvider) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}
