package embeddings

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached decorates a Provider with an in-memory cache keyed by text.
type Cached struct {
	inner Provider
	cache *cache.Cache
}

// NewCached wraps inner. Entries expire after ttl.
func NewCached(inner Provider, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, ttl*2),
	}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if val, found := c.cache.Get(text); found {
		if vec, ok := val.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, append([]float32(nil), vec...), cache.DefaultExpiration)
	return vec, nil
}
