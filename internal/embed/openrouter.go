package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// OpenRouterConfig configures the cloud embedding provider.
type OpenRouterConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	Dimensions       int
	MaxBatchSize     int
	QueryInstruction string
	RequestTimeout   time.Duration

	// Rate limiter parameters.
	MaxRequests int
	Window      time.Duration
	MaxWait     time.Duration
}

// OpenRouterEmbedder generates embeddings through OpenRouter's
// OpenAI-shaped endpoint. Sub-batch concurrency is deliberately
// unbounded; the shared sliding-window rate limiter paces every HTTP
// request, so many in-flight calls throttle themselves.
//
// Slot refunds: a request that never consumed provider capacity —
// network error, timeout, or 5xx — refunds its rate-limit token so a
// waiting request can go immediately. 4xx (including auth failures)
// and 429 are not refunded: the provider counted those.
type OpenRouterEmbedder struct {
	client  *http.Client
	config  OpenRouterConfig
	limiter *SlidingWindowLimiter
}

var _ Embedder = (*OpenRouterEmbedder)(nil)

type openRouterRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type openRouterResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// NewOpenRouterEmbedder creates a cloud provider. Returns ErrNoAPIKey
// when no key is configured.
func NewOpenRouterEmbedder(cfg OpenRouterConfig) (*OpenRouterEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 32
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 2 * time.Minute
	}

	return &OpenRouterEmbedder{
		client:  &http.Client{},
		config:  cfg,
		limiter: NewSlidingWindowLimiter(cfg.MaxRequests, cfg.Window, cfg.MaxWait),
	}, nil
}

// Limiter exposes the shared rate limiter for tests.
func (e *OpenRouterEmbedder) Limiter() *SlidingWindowLimiter { return e.limiter }

// Name returns "openrouter".
func (e *OpenRouterEmbedder) Name() string { return "openrouter" }

// ModelID returns the configured model.
func (e *OpenRouterEmbedder) ModelID() string { return e.config.Model }

// Dimensions returns the configured vector dimension.
func (e *OpenRouterEmbedder) Dimensions() int { return e.config.Dimensions }

// Embed generates an embedding for a single text.
func (e *OpenRouterEmbedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	formatted := FormatForMode(text, mode, e.config.QueryInstruction)
	vecs, err := e.request(ctx, formatted)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &ProviderError{Status: 200, Body: "no embedding returned"}
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts preserving input order across sub-batches.
// Sub-batches run concurrently; the rate limiter paces the requests.
func (e *OpenRouterEmbedder) EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	formatted := make([]string, len(texts))
	for i, t := range texts {
		formatted[i] = FormatForMode(t, mode, e.config.QueryInstruction)
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)

	for _, span := range subBatches(len(formatted), e.config.MaxBatchSize) {
		start, end := span[0], span[1]
		g.Go(func() error {
			vecs, err := e.request(gctx, formatted[start:end])
			if err != nil {
				return err
			}
			for i, v := range vecs {
				results[start+i] = v
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// request performs one rate-limited HTTP call. input is a string or
// []string per the endpoint contract.
func (e *OpenRouterEmbedder) request(ctx context.Context, input any) ([][]float32, error) {
	token, err := e.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	vecs, reqErr := e.doRequest(ctx, input)
	if reqErr != nil {
		if shouldRefund(reqErr) {
			slog.Debug("refunding rate limit slot", "error", reqErr)
			e.limiter.Refund(token)
		}
		return nil, reqErr
	}
	return vecs, nil
}

// shouldRefund reports whether a failed request should return its
// rate-limit slot: yes for network errors, timeouts, and 5xx; no for
// 4xx and 429.
func shouldRefund(err error) bool {
	var ne *NetworkError
	var te *TimeoutError
	var pe *ProviderError
	switch {
	case errors.As(err, &ne), errors.As(err, &te):
		return true
	case errors.As(err, &pe):
		return pe.Status >= 500
	default:
		return false
	}
}

func (e *OpenRouterEmbedder) doRequest(ctx context.Context, input any) ([][]float32, error) {
	body, err := json.Marshal(openRouterRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Err: err}
		}
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var apiResp openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &ProviderError{Status: resp.StatusCode, Body: fmt.Sprintf("malformed response: %v", err)}
	}

	out := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		v := make([]float32, len(d.Embedding))
		for j, f := range d.Embedding {
			v[j] = float32(f)
		}
		out[i] = FitDimension(normalizeVector(v), e.config.Dimensions, "openrouter")
	}
	return out, nil
}
