package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/xiy/memory-assistant/internal/errs"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config/settings.yaml"

// MaxTopK bounds how many results a single search may return.
const MaxTopK = 100

// Config contains runtime configuration for the assistant.
type Config struct {
	Environment string     `yaml:"environment" env:"ENV"`
	LogLevel    string     `yaml:"log_level" env:"LOG_LEVEL"`
	Paths       Paths      `yaml:"paths"`
	LLM         LLM        `yaml:"llm"`
	Embedding   Embedding  `yaml:"embedding"`
	Memory      Memory     `yaml:"memory"`
	Working     Working    `yaml:"working"`
	Procedural  Procedural `yaml:"procedural"`
	Profile     Profile    `yaml:"profile"`
	Security    Security   `yaml:"security"`
	UI          UI         `yaml:"ui"`
	Enrich      Enrich     `yaml:"enrich"`
	Server      Server     `yaml:"server"`
}

type Paths struct {
	DataDir      string `yaml:"data_dir" env:"DATA_DIR"`
	DBFile       string `yaml:"db_file" env:"DB_FILE"`
	LogDir       string `yaml:"log_dir" env:"LOG_DIR"`
	SummariesDir string `yaml:"summaries_dir" env:"SUMMARIES_DIR"`
}

// LLM selects the text generation backend.
type LLM struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER"`
	Model       string  `yaml:"model" env:"LLM_MODEL"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL"`
	APIKey      string  `yaml:"api_key" env:"LLM_API_KEY"`
}

// Embedding selects the vector backend. Dimensions only applies to the
// hash backend and to Gemini output truncation.
type Embedding struct {
	Backend           string `yaml:"backend" env:"EMBEDDING_BACKEND"`
	ModelName         string `yaml:"model_name" env:"EMBEDDING_MODEL"`
	BaseURL           string `yaml:"base_url" env:"EMBEDDING_BASE_URL"`
	Dimensions        int    `yaml:"dimensions"`
	APIKey            string `yaml:"api_key" env:"EMBEDDING_API_KEY"`
	CacheTTLSeconds   int    `yaml:"cache_ttl_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type Memory struct {
	TopK              int     `yaml:"top_k"`
	MinSimilarity     float64 `yaml:"min_similarity"`
	DecayHalfLifeDays float64 `yaml:"decay_halflife_days" env:"DECAY_HALFLIFE_DAYS"`
	TemporalTruthKey  string  `yaml:"temporal_truth_key"`
}

type Working struct {
	Window int `yaml:"window"`
}

type Procedural struct {
	Rules []string `yaml:"rules"`
}

type Profile struct {
	RefreshTurns     int `yaml:"refresh_turns"`
	SummaryMaxTokens int `yaml:"summary_max_tokens"`
}

type Security struct {
	AllowNotesDir string `yaml:"allow_notes_dir" env:"ALLOW_NOTES_DIR"`
	AllowCommands string `yaml:"allow_commands" env:"ALLOW_COMMANDS"`
}

type UI struct {
	Stream       bool   `yaml:"stream"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Enrich configures the optional external knowledge source.
type Enrich struct {
	Enabled  bool   `yaml:"enabled" env:"ENRICH_ENABLED"`
	Endpoint string `yaml:"endpoint" env:"ENRICH_ENDPOINT"`
}

// Server configures the MCP stdio server and its background reporter.
type Server struct {
	Name                  string `yaml:"name"`
	ReportIntervalSeconds int    `yaml:"report_interval_seconds"`
	MetricsAddr           string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

var (
	llmProviders      = []string{"ollama", "lmstudio", "anthropic", "gemini", "dummy"}
	embeddingBackends = []string{"hash", "ollama", "gemini"}
	logLevels         = []string{"debug", "info", "warn", "error"}
)

// Default returns a Config populated with safe defaults.
func Default() Config {
	return Config{
		Environment: "dev",
		LogLevel:    "info",
		Paths: Paths{
			DataDir:      "data",
			DBFile:       filepath.Join("data", "memory.sqlite"),
			LogDir:       "logs",
			SummariesDir: filepath.Join("data", "summaries"),
		},
		LLM: LLM{
			Provider:    "dummy",
			Model:       "llama3.1",
			Temperature: 0.6,
			MaxTokens:   512,
			BaseURL:     "http://localhost:11434",
		},
		Embedding: Embedding{
			Backend:           "hash",
			ModelName:         "nomic-embed-text",
			BaseURL:           "http://localhost:11434",
			Dimensions:        64,
			CacheTTLSeconds:   600,
			RequestsPerMinute: 0,
		},
		Memory: Memory{
			TopK:              6,
			MinSimilarity:     0.25,
			DecayHalfLifeDays: 30,
			TemporalTruthKey:  "topic",
		},
		Working: Working{Window: 8},
		Profile: Profile{RefreshTurns: 5, SummaryMaxTokens: 256},
		Security: Security{
			AllowNotesDir: "notes",
			AllowCommands: filepath.Join("config", "allowlist.yaml"),
		},
		UI:     UI{Stream: false},
		Server: Server{Name: "memory-assistant", ReportIntervalSeconds: 0},
	}
}

// Load reads path over Default and then applies ASSISTANT_* environment
// overrides. A missing file yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, goerr.Wrap(errs.ErrInvalidConfig, "parse config yaml", goerr.V("path", path), goerr.V("cause", err.Error()))
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, goerr.Wrap(errs.ErrInvalidConfig, "read config", goerr.V("path", path), goerr.V("cause", err.Error()))
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ASSISTANT_"}); err != nil {
		return cfg, goerr.Wrap(errs.ErrInvalidConfig, "parse environment", goerr.V("cause", err.Error()))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func invalid(msg string, kv ...any) error {
	opts := make([]goerr.Option, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		opts = append(opts, goerr.V(kv[i].(string), kv[i+1]))
	}
	return goerr.Wrap(errs.ErrInvalidConfig, msg, opts...)
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Embedding.Backend = strings.ToLower(strings.TrimSpace(c.Embedding.Backend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	if c.Paths.DBFile == "" {
		return invalid("paths.db_file must not be empty")
	}
	if !contains(logLevels, c.LogLevel) {
		return invalid("unknown log_level", "log_level", c.LogLevel)
	}
	if !contains(llmProviders, c.LLM.Provider) {
		return invalid("unknown llm provider", "provider", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return invalid("llm.max_tokens must be > 0", "max_tokens", c.LLM.MaxTokens)
	}
	if !contains(embeddingBackends, c.Embedding.Backend) {
		return invalid("unknown embedding backend", "backend", c.Embedding.Backend)
	}
	if c.Embedding.Backend == "hash" && c.Embedding.Dimensions <= 0 {
		return invalid("embedding.dimensions must be > 0", "dimensions", c.Embedding.Dimensions)
	}
	if c.Embedding.CacheTTLSeconds < 0 || c.Embedding.RequestsPerMinute < 0 {
		return invalid("embedding cache and rate settings must not be negative")
	}
	if c.Memory.DecayHalfLifeDays <= 0 {
		return invalid("memory.decay_halflife_days must be > 0", "decay_halflife_days", c.Memory.DecayHalfLifeDays)
	}
	if c.Memory.TopK < 0 || c.Memory.TopK > MaxTopK {
		return invalid("memory.top_k must be between 0 and 100", "top_k", c.Memory.TopK)
	}
	if math.IsNaN(c.Memory.MinSimilarity) || c.Memory.MinSimilarity < -1 || c.Memory.MinSimilarity > 1 {
		return invalid("memory.min_similarity must be in [-1, 1]", "min_similarity", c.Memory.MinSimilarity)
	}
	if c.Working.Window < 0 {
		return invalid("working.window must not be negative", "window", c.Working.Window)
	}
	if c.Profile.RefreshTurns <= 0 {
		return invalid("profile.refresh_turns must be > 0", "refresh_turns", c.Profile.RefreshTurns)
	}
	if c.Server.ReportIntervalSeconds < 0 {
		return invalid("server.report_interval_seconds must not be negative")
	}
	if c.Enrich.Enabled && strings.TrimSpace(c.Enrich.Endpoint) == "" {
		return invalid("enrich.endpoint is required when enrich is enabled")
	}
	return nil
}

// EnsurePaths expands and creates the directories config-managed paths need.
func (c *Config) EnsurePaths() error {
	c.Paths.DataDir = ExpandPath(c.Paths.DataDir)
	c.Paths.DBFile = ExpandPath(c.Paths.DBFile)
	c.Paths.LogDir = ExpandPath(c.Paths.LogDir)
	c.Paths.SummariesDir = ExpandPath(c.Paths.SummariesDir)
	c.Security.AllowNotesDir = ExpandPath(c.Security.AllowNotesDir)
	c.Security.AllowCommands = ExpandPath(c.Security.AllowCommands)

	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.SummariesDir, filepath.Dir(c.Paths.DBFile)}
	for _, d := range dirs {
		if d == "" || d == "." {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return goerr.Wrap(errs.ErrStorageUnavailable, "create directory", goerr.V("path", d), goerr.V("cause", err.Error()))
		}
	}
	return nil
}

// ExpandPath expands "~/" to the current user's home directory.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p == "~" {
		return userHomeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(userHomeDir(), p[2:])
	}
	return p
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func userHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
