// Package conversation runs one chat turn against memory, prompts and the
// configured generator.
package conversation

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/enrich"
	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/llm"
	"github.com/xiy/memory-assistant/internal/prompt"
	"github.com/xiy/memory-assistant/internal/truth"
	"github.com/xiy/memory-assistant/pkg/types"
)

const (
	exchangeConfidence = 0.6
	reflectionInsight  = "Suggest ways to build a deeper connection with the user"
)

// Memory is the subset of memory.Service a chat turn needs.
type Memory interface {
	LogMessage(ctx context.Context, role types.Role, content string) error
	RetrieveContext(ctx context.Context, query string) ([]string, error)
	WorkingMemory(ctx context.Context) ([]string, error)
	Ingest(ctx context.Context, in types.IngestInput) (int64, error)
	RecordTruth(ctx context.Context, in types.TruthInput) (*types.MemoryRecord, error)
}

// Engine owns the per-session state of a conversation.
type Engine struct {
	mem     Memory
	gen     llm.Generator
	enrich  *enrich.Safe
	tracker *ReflectionTracker
	cfg     config.Config
	session string
	logger  *log.Logger
}

func NewEngine(mem Memory, gen llm.Generator, client enrich.Client, cfg config.Config, logger *log.Logger) *Engine {
	session := uuid.NewString()
	logger = logger.With("session", session)
	return &Engine{
		mem:     mem,
		gen:     gen,
		enrich:  enrich.NewSafe(client, logger),
		tracker: NewReflectionTracker(cfg.Profile.RefreshTurns),
		cfg:     cfg,
		session: session,
		logger:  logger,
	}
}

func (e *Engine) Session() string { return e.session }

func (e *Engine) Reflections() []string { return e.tracker.Reflections() }

// Chat answers input. verbose logs the assembled prompt parts at info level.
func (e *Engine) Chat(ctx context.Context, input string, verbose bool) (llm.Response, error) {
	if strings.TrimSpace(input) == "" {
		return llm.Response{}, goerr.Wrap(errs.ErrInvalidConfig, "input must not be empty")
	}
	e.logger.Info("user input", "chars", len(input))
	if err := e.mem.LogMessage(ctx, types.RoleUser, input); err != nil {
		return llm.Response{}, err
	}

	memories, err := e.mem.RetrieveContext(ctx, input)
	if err != nil {
		return llm.Response{}, err
	}
	working, err := e.mem.WorkingMemory(ctx)
	if err != nil {
		return llm.Response{}, err
	}
	rules := e.cfg.Procedural.Rules
	extra := e.enrich.Query(ctx, input, e.cfg.Memory.TopK)
	if verbose {
		e.logger.Info("working memory", "lines", working)
		e.logger.Info("retrieved memories", "snippets", memories)
		e.logger.Info("procedural rules", "rules", rules)
		if len(extra) > 0 {
			e.logger.Info("enrichment", "snippets", extra)
		}
	}

	system, err := prompt.System(e.cfg.UI.SystemPrompt, e.tracker.Reflections())
	if err != nil {
		return llm.Response{}, err
	}
	user, err := prompt.BuildUser(prompt.User{
		Input:      input,
		Working:    working,
		Memories:   memories,
		Rules:      rules,
		Enrichment: extra,
	})
	if err != nil {
		return llm.Response{}, err
	}
	if verbose {
		e.logger.Info("user prompt", "prompt", user)
	}

	resp, err := e.gen.Generate(ctx, llm.Request{System: system, User: user, Stream: e.cfg.UI.Stream})
	if err != nil {
		return llm.Response{}, err
	}
	if err := e.mem.LogMessage(ctx, types.RoleAssistant, resp.Content); err != nil {
		return llm.Response{}, err
	}

	exchange := "User: " + input + "\nAssistant: " + resp.Content
	conf := exchangeConfidence
	if _, err := e.mem.Ingest(ctx, types.IngestInput{
		Kind:       string(types.KindEpisodic),
		Content:    exchange,
		Source:     truth.DefaultSource,
		Confidence: &conf,
	}); err != nil {
		return llm.Response{}, err
	}
	e.enrich.Ingest(ctx, exchange, map[string]string{"kind": string(types.KindEpisodic), "source": truth.DefaultSource})

	if _, err := e.mem.RecordTruth(ctx, types.TruthInput{Topic: e.cfg.Memory.TemporalTruthKey, Content: input}); err != nil {
		return llm.Response{}, err
	}
	e.tracker.MaybeAdd(reflectionInsight)

	if verbose {
		e.logger.Info("generated reply", "reply", resp.Content)
	}
	return resp, nil
}
