package embeddings

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/xiy/memory-assistant/internal/errs"
)

const defaultGeminiEmbeddingModel = "gemini-embedding-001"

// Gemini embeds text with the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	dims   int32
}

// NewGemini creates a Gemini API client. dims > 0 truncates output vectors.
func NewGemini(ctx context.Context, apiKey, model string, dims int) (*Gemini, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "gemini embedding requires an api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "failed to create genai client", goerr.V("cause", err.Error()))
	}
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	return &Gemini{client: client, model: model, dims: int32(dims)}, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{}
	if g.dims > 0 {
		d := g.dims
		cfg.OutputDimensionality = &d
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), cfg)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "failed to embed content", goerr.V("cause", err.Error()))
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "gemini returned no embedding", goerr.V("model", g.model))
	}
	return resp.Embeddings[0].Values, nil
}
