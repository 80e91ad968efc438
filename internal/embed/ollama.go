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
	"golang.org/x/sync/semaphore"
)

// OllamaConfig configures the local embedding provider.
type OllamaConfig struct {
	URL              string
	Model            string
	Dimensions       int
	MaxBatchSize     int
	MaxConcurrent    int64
	QueryInstruction string
	RequestTimeout   time.Duration
}

// OllamaEmbedder generates embeddings through a local Ollama server.
// Sub-batch concurrency is bounded by a semaphore to protect local
// hardware. If the native multi-input endpoint fails, the embedder
// falls back to parallel single-input calls through the same semaphore.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
	sem    *semaphore.Weighted
}

var _ Embedder = (*OllamaEmbedder)(nil)

// ollamaEmbedRequest is the native batch endpoint payload.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// ollamaLegacyRequest is the legacy single-input endpoint payload.
type ollamaLegacyRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaLegacyResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllamaEmbedder creates a local provider.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:11434"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 32
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        int(cfg.MaxConcurrent) * 2,
		MaxIdleConnsPerHost: int(cfg.MaxConcurrent) * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &OllamaEmbedder{
		client: &http.Client{Transport: transport},
		config: cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Name returns "ollama".
func (e *OllamaEmbedder) Name() string { return "ollama" }

// ModelID returns the configured model.
func (e *OllamaEmbedder) ModelID() string { return e.config.Model }

// Dimensions returns the configured vector dimension.
func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, &ProviderError{Status: 0, Body: "no embedding returned"}
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts preserving input order across sub-batches.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
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
			if err := e.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer e.sem.Release(1)

			vecs, err := e.embedSubBatch(gctx, formatted[start:end])
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

// embedSubBatch tries the native batch endpoint and falls back to
// parallel single-input legacy calls on error.
func (e *OllamaEmbedder) embedSubBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedNative(ctx, texts)
	if err == nil {
		return vecs, nil
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		// Transport failure: the legacy endpoint will not fare better.
		return nil, err
	}

	slog.Debug("native embed endpoint failed, falling back to per-item calls",
		"status", pe.Status, "batch", len(texts))

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			v, err := e.embedLegacy(gctx, text)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *OllamaEmbedder) embedNative(ctx context.Context, texts []string) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	var resp ollamaEmbedResponse
	if err := e.post(ctx, "/api/embed", ollamaEmbedRequest{Model: e.config.Model, Input: input}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, &ProviderError{Status: 200,
			Body: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))}
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		out[i] = e.convert(emb)
	}
	return out, nil
}

func (e *OllamaEmbedder) embedLegacy(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaLegacyResponse
	if err := e.post(ctx, "/api/embeddings", ollamaLegacyRequest{Model: e.config.Model, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, &ProviderError{Status: 200, Body: "empty embedding returned"}
	}
	return e.convert(resp.Embedding), nil
}

func (e *OllamaEmbedder) convert(emb []float64) []float32 {
	v := make([]float32, len(emb))
	for i, f := range emb {
		v[i] = float32(f)
	}
	return FitDimension(normalizeVector(v), e.config.Dimensions, "ollama")
}

func (e *OllamaEmbedder) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.URL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return &TimeoutError{Err: err}
		}
		return &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Status: resp.StatusCode, Body: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}
