package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
)

// Ollama calls /api/generate on an Ollama server.
type Ollama struct {
	baseURL string
	params  params
	client  *http.Client
	logger  *log.Logger
}

func NewOllama(baseURL string, p params, logger *log.Logger) *Ollama {
	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		params:  p,
		client:  defaultHTTPClient(),
		logger:  logger,
	}
}

type ollamaGenerateRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Prompt      string        `json:"prompt"`
	Temperature float64       `json:"temperature"`
	Options     ollamaOptions `json:"options"`
	Stream      bool          `json:"stream"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaGenerateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *Ollama) Generate(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:       o.params.model,
		System:      req.System,
		Prompt:      req.User,
		Temperature: o.params.temperature,
		Options:     ollamaOptions{NumPredict: o.params.maxTokens},
		Stream:      req.Stream,
	})
	if err != nil {
		return Response{}, goerr.Wrap(err, "marshal generate request")
	}

	o.logger.Info("calling ollama", "model", o.params.model, "stream", req.Stream)
	resp, err := postJSON(ctx, o.client, o.baseURL+"/api/generate", body, "")
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if !req.Stream {
		var chunk ollamaGenerateChunk
		if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
			return Response{}, goerr.Wrap(errs.ErrProviderFailure, "decode ollama response", goerr.V("cause", err.Error()))
		}
		if chunk.Error != "" {
			return Response{}, goerr.Wrap(errs.ErrProviderFailure, "ollama error", goerr.V("error", chunk.Error))
		}
		return Response{Content: chunk.Response}, nil
	}

	var sb strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return Response{}, goerr.Wrap(errs.ErrProviderFailure, "decode ollama stream", goerr.V("cause", err.Error()))
		}
		if chunk.Error != "" {
			return Response{}, goerr.Wrap(errs.ErrProviderFailure, "ollama error", goerr.V("error", chunk.Error))
		}
		sb.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return Response{}, goerr.Wrap(errs.ErrProviderFailure, "read ollama stream", goerr.V("cause", err.Error()))
	}
	return Response{Content: sb.String()}, nil
}

// postJSON sends body and returns the response when the status is 200.
func postJSON(ctx context.Context, client *http.Client, url string, body []byte, bearer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "build request", goerr.V("url", url), goerr.V("cause", err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "provider request", goerr.V("url", url), goerr.V("cause", err.Error()))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, goerr.Wrap(errs.ErrProviderFailure, "provider status",
			goerr.V("url", url), goerr.V("status", resp.StatusCode), goerr.V("body", string(raw)))
	}
	return resp, nil
}
