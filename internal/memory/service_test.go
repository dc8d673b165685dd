package memory

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/embeddings"
	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/store"
	"github.com/xiy/memory-assistant/pkg/types"
)

func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *store.SQLiteStore) {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "memory.sqlite"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Memory.MinSimilarity = 0.1
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(st, embeddings.NewHash(64), decay.New(nil), cfg, logger)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, st
}

func ptr(f float64) *float64 { return &f }

func TestIngest_DefaultsAndValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st := newTestService(t, nil)

	id, err := svc.Ingest(ctx, types.IngestInput{Kind: "episodic", Content: "Mustafa kahve seviyor", Source: "conversation"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}
	recs, err := st.ListMemories(ctx, types.KindEpisodic)
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Confidence != 0.6 {
		t.Fatalf("expected default episodic confidence 0.6, got %+v", recs)
	}

	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "x", Confidence: ptr(4)}); err != nil {
		t.Fatalf("Ingest(clamped) error = %v", err)
	}
	sem, _ := st.ListMemories(ctx, types.KindSemantic)
	if len(sem) != 1 || sem[0].Confidence != 1 {
		t.Fatalf("expected clamped confidence 1, got %+v", sem)
	}

	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "dream", Content: "x"}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown kind, got %v", err)
	}
	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "  "}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty content, got %v", err)
	}
	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "temporal_truth", Content: "x"}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for topicless truth, got %v", err)
	}
}

func TestIngest_RejectsNaNConfidence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, st := newTestService(t, nil)

	nan := math.NaN()
	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "x", Confidence: &nan}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for NaN ingest, got %v", err)
	}
	if _, err := svc.RecordTruth(ctx, types.TruthInput{Topic: "mood", Content: "calm", Confidence: &nan}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for NaN truth, got %v", err)
	}
	recs, err := st.ListMemories(ctx, types.PersistedKinds...)
	if err != nil {
		t.Fatalf("ListMemories() error = %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("NaN confidence must not persist anything, got %+v", recs)
	}
}

func TestIngest_TemporalTruthIsVersioned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "temporal_truth", Content: "lives in Izmir", Topic: "city"}); err != nil {
			t.Fatalf("Ingest(truth %d) error = %v", i, err)
		}
	}
	hist, err := svc.TruthHistory(ctx, "city")
	if err != nil {
		t.Fatalf("TruthHistory() error = %v", err)
	}
	if len(hist) != 2 || hist[1].Record.Metadata.Version != 2 {
		t.Fatalf("expected two versions, got %+v", hist)
	}
	if len(hist[1].Record.Metadata.Supersedes) != 1 || hist[1].Record.Metadata.Supersedes[0] != hist[0].Record.ID {
		t.Fatalf("expected v2 to supersede v1, got %+v", hist[1].Record.Metadata)
	}
}

func TestSearch_FindsExactMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "episodic", Content: "Mustafa kahve seviyor", Confidence: ptr(0.9)}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "yarın toplantı var"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	res, err := svc.Search(ctx, types.SearchInput{Query: "Mustafa kahve seviyor", K: 1})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res) != 1 || !strings.Contains(res[0].Record.Content, "kahve") || res[0].Score <= 0 {
		t.Fatalf("unexpected search results %+v", res)
	}

	snips, err := svc.RetrieveContext(ctx, "kahve")
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v", err)
	}
	if len(snips) == 0 || !strings.Contains(snips[0], "episodic (confidence 0.90)") {
		t.Fatalf("unexpected snippets %v", snips)
	}

	if _, err := svc.Search(ctx, types.SearchInput{Query: ""}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty query, got %v", err)
	}
	if _, err := svc.Search(ctx, types.SearchInput{Query: "x", Kinds: []string{"procedural"}}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for non-persisted kind, got %v", err)
	}
}

func TestSearch_RejectsNaNMinSimilarity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "tea in the morning"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if _, err := svc.Search(ctx, types.SearchInput{Query: "tea", MinSimilarity: ptr(math.NaN())}); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for NaN min similarity, got %v", err)
	}
}

func TestWorkingMemory_UsesWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, func(c *config.Config) { c.Working.Window = 2 })

	for _, m := range []struct {
		role types.Role
		text string
	}{{types.RoleUser, "a"}, {types.RoleAssistant, "b"}, {types.RoleUser, "c"}} {
		if err := svc.LogMessage(ctx, m.role, m.text); err != nil {
			t.Fatalf("LogMessage() error = %v", err)
		}
	}
	lines, err := svc.WorkingMemory(ctx)
	if err != nil {
		t.Fatalf("WorkingMemory() error = %v", err)
	}
	if strings.Join(lines, "|") != "assistant: b|user: c" {
		t.Fatalf("unexpected working memory %v", lines)
	}
}

func TestProfileSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	for _, in := range []types.IngestInput{
		{Kind: "semantic", Content: "note a", Topic: "work", Source: "notes/a.md"},
		{Kind: "semantic", Content: "note b", Topic: "work", Source: "notes/b.md"},
		{Kind: "episodic", Content: "chat", Source: "conversation"},
	} {
		if _, err := svc.Ingest(ctx, in); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}

	short, err := svc.ProfileSummary(ctx, false)
	if err != nil {
		t.Fatalf("ProfileSummary() error = %v", err)
	}
	if !strings.HasPrefix(short, "Memory highlights:") || !strings.Contains(short, "Top topics: work: 2") {
		t.Fatalf("unexpected summary:\n%s", short)
	}
	if strings.Contains(short, "Profile report") {
		t.Fatalf("short summary must not include the full report")
	}

	long, err := svc.ProfileSummary(ctx, true)
	if err != nil {
		t.Fatalf("ProfileSummary(verbose) error = %v", err)
	}
	if !strings.Contains(long, "Sources:") {
		t.Fatalf("verbose summary must include sources:\n%s", long)
	}
}

func TestDecaySnapshot_DefaultsAndOverrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "x"}); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	snap, err := svc.DecaySnapshot(ctx, nil, nil)
	if err != nil {
		t.Fatalf("DecaySnapshot() error = %v", err)
	}
	if len(snap) != 1 || snap[0].Decayed > snap[0].Record.Confidence {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, err := svc.DecaySnapshot(ctx, nil, ptr(-1)); !errors.Is(err, errs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for negative half-life, got %v", err)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errs.ErrProviderFailure
}

func TestIngest_ProviderFailureWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	st, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "memory.sqlite"), logger)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer st.Close()

	svc, err := NewService(st, failingEmbedder{}, decay.New(nil), config.Default(), logger)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if _, err := svc.Ingest(ctx, types.IngestInput{Kind: "semantic", Content: "x"}); !errors.Is(err, errs.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	recs, err := st.ListMemories(ctx, types.PersistedKinds...)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected no rows after provider failure, got %d (%v)", len(recs), err)
	}
}
