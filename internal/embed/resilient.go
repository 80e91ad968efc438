package embed

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// RetryPolicy configures the resilient layer.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration
	JitterFraction float64
}

// DefaultRetryPolicy returns the standard policy: 3 attempts, 1s initial
// backoff doubling to 30s, ±25% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		BackoffFactor:  DefaultBackoffFactor,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFraction: DefaultJitterFraction,
	}
}

// Resilient wraps any Embedder with retries and binary-split fault
// isolation. A failing batch of size >= 2 splits into halves retried
// concurrently, isolating a single poison input within O(log N) extra
// calls; a failing batch of size 1 surfaces its error.
type Resilient struct {
	inner  Embedder
	policy RetryPolicy
}

var _ Embedder = (*Resilient)(nil)

// NewResilient wraps inner with the default retry policy.
func NewResilient(inner Embedder) *Resilient {
	return NewResilientWithPolicy(inner, DefaultRetryPolicy())
}

// NewResilientWithPolicy wraps inner with a custom policy.
func NewResilientWithPolicy(inner Embedder, policy RetryPolicy) *Resilient {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultInitialBackoff
	}
	if policy.BackoffFactor <= 1.0 {
		policy.BackoffFactor = DefaultBackoffFactor
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = DefaultMaxBackoff
	}
	return &Resilient{inner: inner, policy: policy}
}

// Name returns the wrapped provider's name.
func (r *Resilient) Name() string { return r.inner.Name() }

// ModelID returns the wrapped provider's model.
func (r *Resilient) ModelID() string { return r.inner.ModelID() }

// Dimensions returns the wrapped provider's dimension.
func (r *Resilient) Dimensions() int { return r.inner.Dimensions() }

// Embed retries the whole call on retryable errors.
func (r *Resilient) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	var vec []float32
	err := r.withRetries(ctx, func() error {
		var err error
		vec, err = r.inner.Embed(ctx, text, mode)
		return err
	})
	return vec, err
}

// EmbedBatch retries the whole batch, then binary-splits on persistent
// failure. Results are reassembled into input order.
func (r *Resilient) EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return r.embedSplit(ctx, texts, mode)
}

func (r *Resilient) embedSplit(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	var vecs [][]float32
	err := r.withRetries(ctx, func() error {
		var err error
		vecs, err = r.inner.EmbedBatch(ctx, texts, mode)
		return err
	})
	if err == nil {
		return vecs, nil
	}

	if len(texts) < 2 {
		return nil, err
	}

	// Persistent failure: split into halves and retry each concurrently.
	mid := len(texts) / 2
	slog.Debug("splitting failed embedding batch",
		"size", len(texts), "left", mid, "right", len(texts)-mid)

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		left, err := r.embedSplit(gctx, texts[:mid], mode)
		if err != nil {
			return err
		}
		copy(results, left)
		return nil
	})
	g.Go(func() error {
		right, err := r.embedSplit(gctx, texts[mid:], mode)
		if err != nil {
			return err
		}
		copy(results[mid:], right)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// withRetries runs fn up to MaxAttempts times, backing off between
// retryable failures with exponential delay and jitter.
func (r *Resilient) withRetries(ctx context.Context, fn func() error) error {
	backoff := r.policy.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt > 0 {
			delay := r.jitter(backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			backoff = time.Duration(float64(backoff) * r.policy.BackoffFactor)
			if backoff > r.policy.MaxBackoff {
				backoff = r.policy.MaxBackoff
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
	}
	return lastErr
}

// jitter applies ±JitterFraction to a delay.
func (r *Resilient) jitter(d time.Duration) time.Duration {
	if r.policy.JitterFraction <= 0 {
		return d
	}
	spread := r.policy.JitterFraction * 2 * (rand.Float64() - 0.5)
	return time.Duration(float64(d) * (1 + spread))
}
