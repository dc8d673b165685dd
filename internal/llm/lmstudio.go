package llm

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
)

// LMStudio talks to the OpenAI-compatible /v1/chat/completions endpoint.
type LMStudio struct {
	baseURL string
	params  params
	client  *http.Client
	logger  *log.Logger
}

func NewLMStudio(baseURL string, p params, logger *log.Logger) *LMStudio {
	return &LMStudio{
		baseURL: strings.TrimRight(baseURL, "/"),
		params:  p,
		client:  defaultHTTPClient(),
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   chatMessage `json:"delta"`
	} `json:"choices"`
}

func (l *LMStudio) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: l.params.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: l.params.temperature,
		MaxTokens:   l.params.maxTokens,
		Stream:      req.Stream,
	})
	if err != nil {
		return Response{}, goerr.Wrap(err, "marshal chat request")
	}

	l.logger.Info("calling lm studio", "model", l.params.model, "stream", req.Stream)
	resp, err := postJSON(ctx, l.client, l.baseURL+"/v1/chat/completions", body, "")
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if !req.Stream {
		var out chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Response{}, goerr.Wrap(errs.ErrProviderFailure, "decode chat response", goerr.V("cause", err.Error()))
		}
		if len(out.Choices) == 0 {
			return Response{}, nil
		}
		return Response{Content: out.Choices[0].Message.Content}, nil
	}

	// Server-sent events: "data: {...}" lines terminated by "data: [DONE]".
	var sb strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		data, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		data = bytes.TrimSpace(data)
		if string(data) == "[DONE]" {
			break
		}
		var chunk chatResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			return Response{}, goerr.Wrap(errs.ErrProviderFailure, "decode chat stream", goerr.V("cause", err.Error()))
		}
		for _, c := range chunk.Choices {
			sb.WriteString(c.Delta.Content)
		}
	}
	if err := sc.Err(); err != nil {
		return Response{}, goerr.Wrap(errs.ErrProviderFailure, "read chat stream", goerr.V("cause", err.Error()))
	}
	return Response{Content: sb.String()}, nil
}
