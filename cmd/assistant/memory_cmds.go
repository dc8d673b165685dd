package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiy/memory-assistant/internal/commands"
	"github.com/xiy/memory-assistant/internal/enrich"
	"github.com/xiy/memory-assistant/internal/llm"
	"github.com/xiy/memory-assistant/internal/notes"
	"github.com/xiy/memory-assistant/internal/report"
	"github.com/xiy/memory-assistant/internal/truth"
	"github.com/xiy/memory-assistant/pkg/types"
)

func newIngestNotesCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "ingest-notes <dir>",
		Short:   "Store .txt and .md files from an allowed directory as semantic memories",
		Example: "  assistant ingest-notes notes/journal",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			client := enrich.NewSafe(enrich.Build(a.cfg.Enrich, a.logger), a.logger)
			n, err := notes.Ingest(ctx, args[0], []string{a.cfg.Security.AllowNotesDir}, a.svc, client, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d notes\n", n)
			return nil
		},
	}
}

func newRunCommandCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "run-command <command>",
		Short:   "Run a shell command listed in the allowlist",
		Example: "  assistant run-command \"date\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := commands.RunAllowed(ctx, strings.Join(args, " "), a.cfg.Security.AllowCommands, a.logger)
			fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}

func newProfileCommand(flags *globalFlags) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show memory highlights and counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.svc.ProfileSummary(ctx, full)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "report", false, "Include the full per-bucket report")
	return cmd
}

func newSummariesCommand(flags *globalFlags) *cobra.Command {
	var (
		periodName  string
		withDecay   bool
		withTruth   bool
		skipSummary bool
	)
	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "Write period summaries and decay reports into the summaries directory",
		Example: strings.Join([]string{
			"  assistant summaries --period daily",
			"  assistant summaries --period weekly --decay --temporal-truth",
		}, "\n"),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := report.ParsePeriod(periodName)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			w := report.NewWriter(a.cfg.Paths.SummariesDir, nil, a.logger)
			out := cmd.OutOrStdout()

			if !skipSummary {
				gen, err := llm.Build(ctx, a.cfg.LLM, a.logger)
				if err != nil {
					return err
				}
				path, err := report.SummarizePeriod(ctx, a.store, gen, w, period, a.cfg.Profile.SummaryMaxTokens)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}
			if withDecay {
				snap, err := a.svc.DecaySnapshot(ctx, nil, nil)
				if err != nil {
					return err
				}
				path, err := w.Write("decay", report.DecayReport(string(period), snap))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}
			if withTruth {
				snap, err := a.svc.DecaySnapshot(ctx, []string{string(types.KindTemporalTruth)}, nil)
				if err != nil {
					return err
				}
				path, err := w.Write("temporal-truth", report.TemporalTruthReport(report.GroupByTopic(snap)))
				if err != nil {
					return err
				}
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&periodName, "period", string(report.Daily), "daily or weekly")
	cmd.Flags().BoolVar(&withDecay, "decay", false, "Also write a decay report")
	cmd.Flags().BoolVar(&withTruth, "temporal-truth", false, "Also write the temporal truth version report")
	cmd.Flags().BoolVar(&skipSummary, "no-summary", false, "Skip the generated period summary")
	return cmd
}

func newTruthCommand(flags *globalFlags) *cobra.Command {
	var (
		confidence float64
		source     string
	)
	cmd := &cobra.Command{
		Use:     "truth <topic> <content>",
		Short:   "Record a new version of the belief about a topic",
		Example: "  assistant truth city \"lives in Izmir\"",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			in := types.TruthInput{Topic: args[0], Content: strings.Join(args[1:], " "), Source: source}
			if cmd.Flags().Changed("confidence") {
				in.Confidence = &confidence
			}
			rec, err := a.svc.RecordTruth(ctx, in)
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Snippet(*rec))
			return nil
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", truth.DefaultConfidence, "Confidence in [0, 1]")
	cmd.Flags().StringVar(&source, "source", "cli", "Source label")
	return cmd
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "history <topic>",
		Short: "List every version recorded for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.svc.TruthHistory(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(versions) == 0 {
				fmt.Fprintf(out, "no versions for %q\n", args[0])
				return nil
			}
			for _, v := range versions {
				fmt.Fprintf(out, "%s [now %.2f]\n", report.Snippet(v.Record), v.Decayed)
			}
			return nil
		},
	}
}
