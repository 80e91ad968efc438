// Package embed converts text into fixed-length vectors through local
// (Ollama) or cloud (OpenRouter) HTTP providers, with a resilience layer
// providing retries, backoff, and binary-split fault isolation.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Mode distinguishes query embeddings from document embeddings.
type Mode string

const (
	// ModeQuery formats text with the configured query instruction.
	ModeQuery Mode = "query"
	// ModeDocument embeds text as-is.
	ModeDocument Mode = "document"
)

// Default retry policy for the resilient layer.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultBackoffFactor  = 2.0
	DefaultMaxBackoff     = 30 * time.Second
	DefaultJitterFraction = 0.25
)

// DefaultMaxConcurrent bounds sub-batch concurrency for the local provider.
const DefaultMaxConcurrent = 4

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Name returns the provider name ("ollama", "openrouter", "static").
	Name() string

	// ModelID returns the model identifier.
	ModelID() string

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string, mode Mode) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The result has
	// the same length and order as the input. Empty input returns an
	// empty slice without any network call.
	EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error)
}

// ErrNoAPIKey indicates a cloud provider without credentials.
var ErrNoAPIKey = errors.New("no API key configured")

// NetworkError wraps transport-level failures; always retryable and the
// rate-limit slot is refunded.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError indicates a request exceeded its deadline; retryable,
// slot refunded.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }
func (e *TimeoutError) Unwrap() error { return e.Err }

// ProviderError is a non-2xx HTTP response from a provider.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: status %d: %s", e.Status, e.Body)
}

// IsRetryable reports whether an error warrants a retry: network errors,
// timeouts, and HTTP 429/502/503/504. Other 4xx and malformed responses
// are persistent.
func IsRetryable(err error) bool {
	var ne *NetworkError
	var te *TimeoutError
	var pe *ProviderError
	switch {
	case errors.As(err, &ne), errors.As(err, &te):
		return true
	case errors.As(err, &pe):
		switch pe.Status {
		case 429, 502, 503, 504:
			return true
		}
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// FormatForMode applies the query-instruction prefix in query mode.
// Applies uniformly to all providers.
func FormatForMode(text string, mode Mode, instruction string) string {
	if mode == ModeQuery && instruction != "" {
		return fmt.Sprintf("Instruct: %s\nQuery:%s", instruction, text)
	}
	return text
}

// FitDimension pads or truncates a vector to dim, logging at warn on
// mismatch.
func FitDimension(v []float32, dim int, provider string) []float32 {
	if len(v) == dim {
		return v
	}
	slog.Warn("embedding dimension mismatch, adjusting",
		"provider", provider, "got", len(v), "want", dim)
	out := make([]float32, dim)
	copy(out, v)
	return out
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// subBatches splits n items into batches of at most size, preserving order.
func subBatches(n, size int) [][2]int {
	if size <= 0 {
		size = 1
	}
	var spans [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, [2]int{start, end})
	}
	return spans
}
