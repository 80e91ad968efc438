package embed

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ccengram/ccengram/internal/config"
)

// NewFromConfig builds the configured provider wrapped in the resilient
// layer. Unknown providers are an error; a missing cloud key degrades
// to the static embedder so the service stays available offline.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	ec := cfg.Embedding

	switch ec.Provider {
	case "", "ollama":
		return NewResilient(NewOllamaEmbedder(OllamaConfig{
			URL:              ec.OllamaURL,
			Model:            ec.Model,
			Dimensions:       ec.Dimensions,
			MaxBatchSize:     ec.ComputedMaxBatchSize(),
			MaxConcurrent:    int64(ec.MaxConcurrent),
			QueryInstruction: ec.QueryInstruction,
		})), nil

	case "openrouter":
		inner, err := NewOpenRouterEmbedder(OpenRouterConfig{
			APIKey:           ec.OpenRouterAPIKey,
			Model:            ec.Model,
			Dimensions:       ec.Dimensions,
			MaxBatchSize:     ec.ComputedMaxBatchSize(),
			QueryInstruction: ec.QueryInstruction,
			Window:           time.Minute,
		})
		if errors.Is(err, ErrNoAPIKey) {
			slog.Warn("no OpenRouter API key configured, falling back to static embedder")
			return NewStaticEmbedder(ec.Dimensions), nil
		}
		if err != nil {
			return nil, err
		}
		return NewResilient(inner), nil

	case "static":
		return NewStaticEmbedder(ec.Dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", ec.Provider)
	}
}
