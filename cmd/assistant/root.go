package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/embeddings"
	"github.com/xiy/memory-assistant/internal/logging"
	"github.com/xiy/memory-assistant/internal/memory"
	"github.com/xiy/memory-assistant/internal/store"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "assistant",
		Short: "Local personal assistant with long-term memory",
		Long: strings.TrimSpace(`assistant keeps episodic, semantic and versioned temporal memories in a
local SQLite file, retrieves them by similarity weighted with time decay,
and uses them when chatting or when serving MCP clients over stdio.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath, "Path to settings YAML")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging and prompt tracing")

	root.AddCommand(
		newChatCommand(flags),
		newIngestNotesCommand(flags),
		newRunCommandCommand(flags),
		newProfileCommand(flags),
		newSummariesCommand(flags),
		newTruthCommand(flags),
		newHistoryCommand(flags),
		newServeCommand(flags),
		newAdminCommand(flags),
		newVersionCommand(),
	)
	return root
}

// app holds the components shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *log.Logger
	store  *store.SQLiteStore
	svc    *memory.Service

	logCloser io.Closer
}

func openApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg, flags.verbose)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenSQLite(ctx, cfg.Paths.DBFile, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	embedder, err := embeddings.Build(ctx, cfg.Embedding, logger)
	if err != nil {
		_ = st.Close()
		_ = closer.Close()
		return nil, err
	}
	svc, err := memory.NewService(st, embedder, decay.New(nil), cfg, logger)
	if err != nil {
		_ = st.Close()
		_ = closer.Close()
		return nil, err
	}
	logger.Debug("assistant ready", "env", cfg.Environment, "db", cfg.Paths.DBFile, "llm", cfg.LLM.Provider, "embedding", cfg.Embedding.Backend)
	return &app{cfg: cfg, logger: logger, store: st, svc: svc, logCloser: closer}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close store", "error", err)
	}
	_ = a.logCloser.Close()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memory-assistant v%s\n", version)
		},
	}
}
