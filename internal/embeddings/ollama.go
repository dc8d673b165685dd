package embeddings

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
)

// Ollama calls the /api/embed endpoint of a local Ollama server.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// OllamaOption configures an Ollama embedder.
type OllamaOption func(*Ollama)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		if c != nil {
			o.client = c
		}
	}
}

func NewOllama(baseURL, model string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Embedding  []float32   `json:"embedding"`
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, goerr.Wrap(err, "marshal embed request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "build embed request", goerr.V("cause", err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "ollama embed", goerr.V("cause", err.Error()))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "read embed response", goerr.V("cause", err.Error()))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "ollama embed status",
			goerr.V("status", resp.StatusCode), goerr.V("body", truncate(string(raw), 200)))
	}

	var out ollamaEmbedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "decode embed response", goerr.V("cause", err.Error()))
	}
	vec := out.Embedding
	if len(out.Embeddings) > 0 {
		vec = out.Embeddings[0]
	}
	if len(vec) == 0 {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "ollama returned no embedding", goerr.V("model", o.model))
	}
	return vec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
