package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// StaticEmbedder produces deterministic vectors from token hashes with
// no network dependency. It serves offline operation and tests; vectors
// capture coarse lexical overlap, not semantics.
type StaticEmbedder struct {
	dims        int
	instruction string
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a hash-based embedder with the given dimension.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &StaticEmbedder{dims: dims}
}

// Name returns "static".
func (e *StaticEmbedder) Name() string { return "static" }

// ModelID returns the pseudo-model identifier.
func (e *StaticEmbedder) ModelID() string { return "static-hash" }

// Dimensions returns the vector dimension.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// Embed produces a deterministic vector for text.
func (e *StaticEmbedder) Embed(_ context.Context, text string, mode Mode) ([]float32, error) {
	return e.vectorize(FormatForMode(text, mode, e.instruction)), nil
}

// EmbedBatch produces deterministic vectors preserving input order.
func (e *StaticEmbedder) EmbedBatch(_ context.Context, texts []string, mode Mode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectorize(FormatForMode(t, mode, e.instruction))
	}
	return out, nil
}

// vectorize accumulates token hashes into buckets and normalizes.
// Shared tokens between two texts produce correlated vectors, which is
// enough for substring-overlap ranking in degraded mode.
func (e *StaticEmbedder) vectorize(text string) []float32 {
	v := make([]float32, e.dims)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dims))
		sign := float32(1)
		if (sum>>63)&1 == 1 {
			sign = -1
		}
		v[bucket] += sign
	}

	var norm float64
	for _, f := range v {
		norm += float64(f) * float64(f)
	}
	if norm == 0 {
		return v
	}
	mag := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= mag
	}
	return v
}

// tokenize lowercases and splits on non-alphanumerics.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})
}
