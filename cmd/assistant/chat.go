package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/xiy/memory-assistant/internal/conversation"
	"github.com/xiy/memory-assistant/internal/enrich"
	"github.com/xiy/memory-assistant/internal/llm"
)

var (
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

func newChatCommand(flags *globalFlags) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant",
		Long:  "Start an interactive session, or send a single message with --message.",
		Example: strings.Join([]string{
			"  assistant chat",
			"  assistant chat --message \"what do I usually drink in the morning?\"",
		}, "\n"),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			gen, err := llm.Build(ctx, a.cfg.LLM, a.logger)
			if err != nil {
				return err
			}
			engine := conversation.NewEngine(a.svc, gen, enrich.Build(a.cfg.Enrich, a.logger), a.cfg, a.logger)

			out := cmd.OutOrStdout()
			if strings.TrimSpace(message) != "" {
				return chatTurn(ctx, engine, message, flags.verbose, out)
			}
			return interactive(ctx, engine, flags.verbose, out)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message")
	return cmd
}

func chatTurn(ctx context.Context, engine *conversation.Engine, input string, verbose bool, out io.Writer) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " thinking"
	s.Start()
	resp, err := engine.Chat(ctx, input, verbose)
	s.Stop()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, replyStyle.Render(resp.Content))
	return nil
}

func interactive(ctx context.Context, engine *conversation.Engine, verbose bool, out io.Writer) error {
	fmt.Fprintln(out, bannerStyle.Render("memory-assistant"))
	fmt.Fprintln(out, hintStyle.Render("type exit or press Ctrl+D to leave"))

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".memory_assistant_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "bye")
				return nil
			}
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(out, "bye")
			return nil
		}
		if err := chatTurn(ctx, engine, input, verbose, out); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
