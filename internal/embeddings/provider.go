// Package embeddings turns text into fixed-length vectors.
package embeddings

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/errs"
)

// Provider produces an embedding for text. Failures wrap errs.ErrProviderFailure.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Build returns the configured backend, rate limited and cached when the
// config asks for it.
func Build(ctx context.Context, cfg config.Embedding, logger *log.Logger) (Provider, error) {
	var p Provider
	switch cfg.Backend {
	case "", "hash":
		logger.Warn("hash embedding backend selected; retrieval quality will be low")
		return NewHash(cfg.Dimensions), nil
	case "ollama":
		p = NewOllama(cfg.BaseURL, cfg.ModelName)
	case "gemini":
		g, err := NewGemini(ctx, cfg.APIKey, cfg.ModelName, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		p = g
	default:
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "unknown embedding backend", goerr.V("backend", cfg.Backend))
	}

	if cfg.RequestsPerMinute > 0 {
		p = NewRateLimited(p, cfg.RequestsPerMinute)
	}
	if cfg.CacheTTLSeconds > 0 {
		p = NewCached(p, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}
	logger.Debug("embedding provider ready", "backend", cfg.Backend, "model", cfg.ModelName)
	return p, nil
}
