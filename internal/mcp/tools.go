package mcp

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/memory"
	"github.com/xiy/memory-assistant/internal/truth"
	"github.com/xiy/memory-assistant/pkg/types"
)

const defaultRecentMessages = 20

// ToolDefinition models MCP tool metadata.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolHandler func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error)

var kindNames = []string{string(types.KindEpisodic), string(types.KindSemantic), string(types.KindTemporalTruth)}

var toolHandlers = map[string]toolHandler{
	"memory_ingest": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[types.IngestInput]("memory_ingest", args)
		if err != nil {
			return nil, err
		}
		id, err := svc.Ingest(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "kind": in.Kind}, nil
	},
	"memory_search": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[types.SearchInput]("memory_search", args)
		if err != nil {
			return nil, err
		}
		results, err := svc.Search(ctx, in)
		if err != nil {
			return nil, err
		}
		for i := range results {
			results[i].Record.Embedding = nil
		}
		return map[string]any{"results": results}, nil
	},
	"truth_record": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[types.TruthInput]("truth_record", args)
		if err != nil {
			return nil, err
		}
		rec, err := svc.RecordTruth(ctx, in)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return map[string]any{"recorded": false}, nil
		}
		rec.Embedding = nil
		return map[string]any{"recorded": true, "record": rec}, nil
	},
	"truth_history": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[struct {
			Topic string `json:"topic"`
		}]("truth_history", args)
		if err != nil {
			return nil, err
		}
		hist, err := svc.TruthHistory(ctx, in.Topic)
		if err != nil {
			return nil, err
		}
		return map[string]any{"topic": in.Topic, "versions": stripVersions(hist)}, nil
	},
	"messages_recent": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[struct {
			Limit int `json:"limit"`
		}]("messages_recent", args)
		if err != nil {
			return nil, err
		}
		if in.Limit <= 0 {
			in.Limit = defaultRecentMessages
		}
		msgs, err := svc.RecentMessages(ctx, in.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": msgs}, nil
	},
	"memory_decay_snapshot": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[struct {
			Kinds        []string `json:"kinds"`
			HalfLifeDays *float64 `json:"half_life_days"`
		}]("memory_decay_snapshot", args)
		if err != nil {
			return nil, err
		}
		snap, err := svc.DecaySnapshot(ctx, in.Kinds, in.HalfLifeDays)
		if err != nil {
			return nil, err
		}
		for i := range snap {
			snap[i].Record.Embedding = nil
		}
		return map[string]any{"records": snap}, nil
	},
	"memory_profile": func(ctx context.Context, svc *memory.Service, args json.RawMessage) (any, error) {
		in, err := decodeArgs[struct {
			Verbose bool `json:"verbose"`
		}]("memory_profile", args)
		if err != nil {
			return nil, err
		}
		p, _, err := svc.Profile(ctx)
		if err != nil {
			return nil, err
		}
		text, err := svc.ProfileSummary(ctx, in.Verbose)
		if err != nil {
			return nil, err
		}
		return map[string]any{"profile": p, "summary": text}, nil
	},
}

func decodeArgs[T any](tool string, raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, goerr.Wrap(errs.ErrInvalidConfig, "invalid tool arguments", goerr.V("tool", tool), goerr.V("cause", err.Error()))
	}
	return v, nil
}

func stripVersions(vs []truth.Version) []truth.Version {
	for i := range vs {
		vs[i].Record.Embedding = nil
	}
	return vs
}

func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "memory_ingest",
			Description: "Embed and store a memory. temporal_truth entries need a topic and are versioned.",
			InputSchema: jsonSchema(map[string]any{
				"kind":       propStringEnum("Memory kind.", kindNames),
				"content":    propString("Memory text."),
				"source":     propString("Where the memory came from."),
				"confidence": propNumber("Confidence in [0, 1]. Defaults per kind."),
				"topic":      propString("Optional topic label."),
			}, []string{"kind", "content"}),
		},
		{
			Name:        "memory_search",
			Description: "Rank stored memories by cosine similarity weighted by decayed confidence.",
			InputSchema: jsonSchema(map[string]any{
				"query":          propString("Search text."),
				"kinds":          propStringArray("Kinds to consider. Defaults to all.", kindNames),
				"k":              propNumber("Maximum results."),
				"min_similarity": propNumber("Similarity floor applied before decay."),
				"half_life_days": propNumber("Decay half-life in days. 0 disables decay."),
			}, []string{"query"}),
		},
		{
			Name:        "truth_record",
			Description: "Append a new version of the current belief about a topic.",
			InputSchema: jsonSchema(map[string]any{
				"topic":      propString("Topic key."),
				"content":    propString("New belief."),
				"confidence": propNumber("Confidence in [0, 1]."),
				"source":     propString("Where the belief came from."),
			}, []string{"topic", "content"}),
		},
		{
			Name:        "truth_history",
			Description: "List every version recorded for a topic, oldest first, with decayed confidence.",
			InputSchema: jsonSchema(map[string]any{
				"topic": propString("Topic key."),
			}, []string{"topic"}),
		},
		{
			Name:        "messages_recent",
			Description: "Return the most recent conversation turns in chronological order.",
			InputSchema: jsonSchema(map[string]any{
				"limit": propNumber("Number of turns."),
			}, nil),
		},
		{
			Name:        "memory_decay_snapshot",
			Description: "Evaluate decayed confidence for stored memories without changing them.",
			InputSchema: jsonSchema(map[string]any{
				"kinds":          propStringArray("Kinds to include. Defaults to all.", kindNames),
				"half_life_days": propNumber("Decay half-life in days."),
			}, nil),
		},
		{
			Name:        "memory_profile",
			Description: "Summarize stored memories by kind, topic and source.",
			InputSchema: jsonSchema(map[string]any{
				"verbose": propBoolean("Include the full per-bucket report."),
			}, nil),
		},
	}
}

func jsonSchema(properties map[string]any, required []string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func propString(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func propStringEnum(description string, values []string) map[string]any {
	return map[string]any{"type": "string", "description": description, "enum": values}
}

func propStringArray(description string, values []string) map[string]any {
	return map[string]any{
		"type":        "array",
		"description": description,
		"items":       map[string]any{"type": "string", "enum": values},
	}
}

func propNumber(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func propBoolean(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}
