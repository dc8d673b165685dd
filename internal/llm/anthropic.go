package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
)

const defaultAnthropicModel = "claude-sonnet-4-5"

// Anthropic generates text with the Messages API.
type Anthropic struct {
	client *anthropic.Client
	params params
	logger *log.Logger
}

func NewAnthropic(apiKey string, p params, logger *log.Logger, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "anthropic provider requires an api key")
	}
	if p.model == "" || !strings.HasPrefix(p.model, "claude") {
		p.model = defaultAnthropicModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Anthropic{client: &client, params: p, logger: logger}, nil
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (Response, error) {
	msg := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.params.model),
		MaxTokens: int64(a.params.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(a.params.temperature),
	}
	if req.System != "" {
		msg.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	a.logger.Info("calling anthropic", "model", a.params.model)
	resp, err := a.client.Messages.New(ctx, msg)
	if err != nil {
		return Response{}, goerr.Wrap(errs.ErrProviderFailure, "anthropic messages", goerr.V("cause", err.Error()))
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return Response{Content: sb.String()}, nil
}
