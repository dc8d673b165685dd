package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/llm"
	"github.com/xiy/memory-assistant/internal/prompt"
	"github.com/xiy/memory-assistant/internal/truth"
	"github.com/xiy/memory-assistant/pkg/types"
)

// Period selects the summarization horizon.
type Period string

const (
	Daily  Period = "daily"
	Weekly Period = "weekly"
)

// ParsePeriod accepts daily or weekly in any case.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case Daily, Weekly:
		return p, nil
	}
	return "", goerr.Wrap(errs.ErrInvalidConfig, "period must be daily or weekly", goerr.V("period", s))
}

// Horizon is the look-back window of p.
func (p Period) Horizon() time.Duration {
	if p == Weekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// SinceLister is the store read used by SummarizePeriod.
type SinceLister interface {
	MemoriesSince(ctx context.Context, since time.Time, kinds ...types.Kind) ([]types.MemoryRecord, error)
}

// Writer writes markdown reports named <prefix>-YYYYMMDD-HHMM.md into dir.
type Writer struct {
	dir    string
	now    func() time.Time
	logger *log.Logger
}

func NewWriter(dir string, now func() time.Time, logger *log.Logger) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{dir: dir, now: now, logger: logger}
}

// Write stores body and returns the file path.
func (w *Writer) Write(prefix, body string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", goerr.Wrap(errs.ErrStorageUnavailable, "create summaries dir", goerr.V("dir", w.dir), goerr.V("cause", err.Error()))
	}
	name := fmt.Sprintf("%s-%s.md", prefix, w.now().Local().Format("20060102-1504"))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", goerr.Wrap(errs.ErrStorageUnavailable, "write report", goerr.V("path", path), goerr.V("cause", err.Error()))
	}
	w.logger.Info("report written", "path", path)
	return path, nil
}

// DecayReport renders one line per record: stored and decayed confidence.
func DecayReport(label string, snapshot []types.DecayedRecord) string {
	lines := []string{fmt.Sprintf("# Decay report (%s)", label), ""}
	if len(snapshot) == 0 {
		lines = append(lines, "- (no records)")
	}
	for _, d := range snapshot {
		lines = append(lines, fmt.Sprintf("- %s | %s | %.2f -> %.2f | %s",
			d.Record.Kind, topicOrNone(d.Record.Topic), d.Record.Confidence, d.Decayed, clip(d.Record.Content, 140)))
	}
	return strings.Join(lines, "\n") + "\n"
}

// TemporalTruthReport renders every topic's version table, topics sorted
// by name.
func TemporalTruthReport(history map[string][]truth.Version) string {
	topics := make([]string, 0, len(history))
	for t := range history {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	var b strings.Builder
	b.WriteString("# Temporal truth\n")
	if len(topics) == 0 {
		b.WriteString("\n- (no versions)\n")
	}
	for _, t := range topics {
		fmt.Fprintf(&b, "\n## %s\n\n", t)
		versions := append([]truth.Version(nil), history[t]...)
		truth.SortVersions(versions)
		for _, v := range versions {
			fmt.Fprintf(&b, "- v%d | id %d | %.2f -> %.2f | %s", v.Record.Metadata.Version, v.Record.ID,
				v.Record.Confidence, v.Decayed, clip(v.Record.Content, 140))
			if len(v.Record.Metadata.Supersedes) > 0 {
				ids := make([]string, 0, len(v.Record.Metadata.Supersedes))
				for _, id := range v.Record.Metadata.Supersedes {
					ids = append(ids, fmt.Sprint(id))
				}
				fmt.Fprintf(&b, " | supersedes: %s", strings.Join(ids, ","))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// GroupByTopic converts a flat temporal_truth snapshot into per-topic
// versions.
func GroupByTopic(snapshot []types.DecayedRecord) map[string][]truth.Version {
	out := map[string][]truth.Version{}
	for _, d := range snapshot {
		if d.Record.Kind != types.KindTemporalTruth || d.Record.Topic == "" {
			continue
		}
		out[d.Record.Topic] = append(out[d.Record.Topic], truth.Version{Record: d.Record, Decayed: d.Decayed})
	}
	return out
}

// SummarizePeriod asks gen for a digest of the memories created within the
// period horizon and writes it as <period>-summary.
func SummarizePeriod(ctx context.Context, src SinceLister, gen llm.Generator, w *Writer, period Period, maxTokens int) (string, error) {
	since := w.now().Add(-period.Horizon())
	recs, err := src.MemoriesSince(ctx, since)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("(%s, %s) %s", r.Kind, topicOrNone(r.Topic), r.Content))
	}
	user, err := prompt.BuildSummary(prompt.Summary{Period: string(period), MaxTokens: maxTokens, Lines: lines})
	if err != nil {
		return "", err
	}
	resp, err := gen.Generate(ctx, llm.Request{System: "You write concise summaries.", User: user})
	if err != nil {
		return "", err
	}
	return w.Write(string(period)+"-summary", resp.Content)
}

func topicOrNone(t string) string {
	if t == "" {
		return "no topic"
	}
	return t
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
