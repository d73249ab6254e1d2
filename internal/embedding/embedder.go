package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Embedder turns texts into fixed-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimensions() int
	Model() string
}

// Compile-time interface checks.
var (
	_ Embedder = (*HashEmbedder)(nil)
	_ Embedder = (*OllamaEmbedder)(nil)
)

// HashEmbedder projects terms into a fixed number of buckets with FNV-1a
// feature hashing and sublinear term frequency. It is deterministic and
// needs no network.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of dims length.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Embed returns one unit-length vector per text. Texts without usable
// tokens yield a zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = h.embedOne(text)
	}
	return out, nil
}

// Dimensions returns the vector length.
func (h *HashEmbedder) Dimensions() int { return h.dims }

// Model returns the embedder identifier.
func (h *HashEmbedder) Model() string { return fmt.Sprintf("hash-fnv-%d", h.dims) }

func (h *HashEmbedder) embedOne(text string) []float64 {
	vec := make([]float64, h.dims)

	counts := make(map[string]int)
	for _, tok := range Tokenize(text) {
		counts[tok]++
	}
	for term, n := range counts {
		idx, sign := h.bucket(term)
		vec[idx] += sign * (1 + math.Log(float64(n)))
	}
	return Normalize(vec)
}

// bucket maps a term to a dimension and a sign. The sign halves the bias
// from colliding terms.
func (h *HashEmbedder) bucket(term string) (int, float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(term))
	sum := f.Sum64()
	sign := 1.0
	if sum&(1<<63) != 0 {
		sign = -1.0
	}
	return int(sum % uint64(h.dims)), sign
}
