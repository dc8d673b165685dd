// Package llm wraps the text generation backends behind one interface.
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/errs"
)

// Request is one system plus user prompt exchange.
type Request struct {
	System string
	User   string
	// Stream asks HTTP backends for incremental output. The full text is
	// still returned once the stream ends.
	Stream bool
}

type Response struct {
	Content string
}

// Generator produces text. Failures wrap errs.ErrProviderFailure.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type params struct {
	model       string
	temperature float64
	maxTokens   int
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 300 * time.Second}
}

// Build returns the generator selected by cfg.Provider.
func Build(ctx context.Context, cfg config.LLM, logger *log.Logger) (Generator, error) {
	p := params{model: cfg.Model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.BaseURL, p, logger), nil
	case "lmstudio":
		return NewLMStudio(cfg.BaseURL, p, logger), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, p, logger)
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, p, logger)
	case "", "dummy":
		return NewDummy(logger), nil
	}
	return nil, goerr.Wrap(errs.ErrInvalidConfig, "unknown llm provider", goerr.V("provider", cfg.Provider))
}
