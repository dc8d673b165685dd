package llm

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/xiy/memory-assistant/internal/errs"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini generates text with the Gemini API.
type Gemini struct {
	client *genai.Client
	params params
	logger *log.Logger
}

func NewGemini(ctx context.Context, apiKey string, p params, logger *log.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "gemini provider requires an api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "failed to create genai client", goerr.V("cause", err.Error()))
	}
	if p.model == "" || !strings.HasPrefix(p.model, "gemini") {
		p.model = defaultGeminiModel
	}
	return &Gemini{client: client, params: p, logger: logger}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.params.temperature)),
		MaxOutputTokens: int32(g.params.maxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	g.logger.Info("calling gemini", "model", g.params.model)
	resp, err := g.client.Models.GenerateContent(ctx, g.params.model, genai.Text(req.User), cfg)
	if err != nil {
		return Response{}, goerr.Wrap(errs.ErrProviderFailure, "failed to generate content", goerr.V("cause", err.Error()))
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, goerr.Wrap(errs.ErrProviderFailure, "invalid response structure from gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return Response{Content: sb.String()}, nil
}
