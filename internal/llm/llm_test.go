package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/errs"
)

func discard() *log.Logger { return log.NewWithOptions(io.Discard, log.Options{}) }

var testParams = params{model: "m", temperature: 0.3, maxTokens: 32}

func TestDummy_EchoesPrompt(t *testing.T) {
	t.Parallel()
	d := NewDummy(discard())
	resp, err := d.Generate(context.Background(), Request{System: "s", User: strings.Repeat("ş", 300)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Content, dummyPrefix))
	assert.Equal(t, 200, len([]rune(strings.TrimPrefix(resp.Content, dummyPrefix))))
	assert.Len(t, d.History(), 1)
}

func TestOllama_Generate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sys", req.System)
		assert.Equal(t, 32, req.Options.NumPredict)
		if req.Stream {
			_, _ = io.WriteString(w, "{\"response\":\"Merhaba\"}\n\n{\"response\":\" dünya\",\"done\":true}\n")
			return
		}
		_, _ = io.WriteString(w, `{"response":"tek parça","done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, testParams, discard())
	resp, err := o.Generate(context.Background(), Request{System: "sys", User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "tek parça", resp.Content)

	resp, err = o.Generate(context.Background(), Request{System: "sys", User: "u", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "Merhaba dünya", resp.Content)
}

func TestOllama_StatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL, testParams, discard()).Generate(context.Background(), Request{User: "u"})
	assert.ErrorIs(t, err, errs.ErrProviderFailure)
}

func TestLMStudio_Generate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "system", req.Messages[0].Role)
			assert.Equal(t, "user", req.Messages[1].Role)
		}
		if req.Stream {
			_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n"+
				": keep-alive\n"+
				"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n"+
				"data: [DONE]\n\n")
			return
		}
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"tamam"}}]}`)
	}))
	defer srv.Close()

	l := NewLMStudio(srv.URL+"/", testParams, discard())
	resp, err := l.Generate(context.Background(), Request{System: "s", User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "tamam", resp.Content)

	resp, err = l.Generate(context.Background(), Request{System: "s", User: "u", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "ab", resp.Content)
}

func TestBuild(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	g, err := Build(ctx, config.LLM{Provider: "dummy"}, discard())
	require.NoError(t, err)
	assert.IsType(t, &Dummy{}, g)

	g, err = Build(ctx, config.LLM{Provider: "ollama", BaseURL: "http://x"}, discard())
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, g)

	g, err = Build(ctx, config.LLM{Provider: "lmstudio", BaseURL: "http://x"}, discard())
	require.NoError(t, err)
	assert.IsType(t, &LMStudio{}, g)

	g, err = Build(ctx, config.LLM{Provider: "anthropic", APIKey: "k", MaxTokens: 10}, discard())
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, g)

	_, err = Build(ctx, config.LLM{Provider: "anthropic"}, discard())
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = Build(ctx, config.LLM{Provider: "gemini"}, discard())
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)

	_, err = Build(ctx, config.LLM{Provider: "palm"}, discard())
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestAnthropic_Generate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-sonnet-4-5", body["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
"content":[{"type":"text","text":"selam"},{"type":"text","text":"!"}],
"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	a, err := NewAnthropic("k", testParams, discard(), option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)
	resp, err := a.Generate(context.Background(), Request{System: "s", User: "u"})
	require.NoError(t, err)
	assert.Equal(t, "selam!", resp.Content)
}
