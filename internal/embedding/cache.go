package embedding

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CihadCengiz/prompt-generator/internal/chunk"
)

// CachedProvider memoizes embeddings by the hash of their input text. Only
// cache misses reach the inner provider, in one batch, preserving input order.
// Cached vectors are never shared with callers.
type CachedProvider struct {
	inner  Provider
	cache  *lru.Cache[string, []float32]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedProvider wraps inner with an LRU of the given size.
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: c}, nil
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))

	var (
		missTexts []string
		missPos   []int
	)
	for i, t := range texts {
		keys[i] = chunk.Hash(t)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = slices.Clone(v)
			continue
		}
		missTexts = append(missTexts, t)
		missPos = append(missPos, i)
	}
	c.hits.Add(int64(len(texts) - len(missTexts)))
	c.misses.Add(int64(len(missTexts)))

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if err := CheckCount(vectors, missTexts); err != nil {
		return nil, err
	}
	for j, pos := range missPos {
		out[pos] = vectors[j]
		c.cache.Add(keys[pos], slices.Clone(vectors[j]))
	}
	return out, nil
}

// Stats returns cumulative hit and miss counts.
func (c *CachedProvider) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
