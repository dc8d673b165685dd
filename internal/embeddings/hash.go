package embeddings

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/xiy/memory-assistant/internal/vecmath"
)

// Hash is a deterministic bag-of-words embedder. It needs no model and is
// meant for tests and offline use.
type Hash struct {
	dims int
}

// NewHash returns a hash embedder producing dims-length unit vectors.
func NewHash(dims int) *Hash {
	if dims <= 0 {
		dims = 64
	}
	return &Hash{dims: dims}
}

// Dimensions returns the vector length.
func (h *Hash) Dimensions() int { return h.dims }

// Embed counts lowercased whitespace tokens into hashed buckets and
// normalizes. Empty text yields the zero vector.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		vec[f.Sum64()%uint64(h.dims)]++
	}
	vecmath.Normalize(vec)
	return vec, nil
}
