package report

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/llm"
	"github.com/xiy/memory-assistant/internal/truth"
	"github.com/xiy/memory-assistant/pkg/types"
)

var at = time.Date(2026, 3, 14, 9, 26, 0, 0, time.Local)

func discard() *log.Logger { return log.NewWithOptions(io.Discard, log.Options{}) }

func TestSnippet(t *testing.T) {
	t.Parallel()
	got := Snippet(types.MemoryRecord{
		Kind: types.KindEpisodic, Content: "Mustafa kahve seviyor", CreatedAt: at,
		Source: "conversation", Confidence: 0.9,
	})
	assert.Equal(t, "[2026-03-14 09:26] episodic (confidence 0.90) -> Mustafa kahve seviyor (source: conversation)", got)

	got = Snippet(types.MemoryRecord{
		Kind: types.KindTemporalTruth, Content: "tired", CreatedAt: at, Source: "conversation",
		Confidence: 0.8, Topic: "mood", Metadata: types.TruthMeta{Version: 3},
	})
	assert.Equal(t, "[2026-03-14 09:26] temporal_truth (confidence 0.80 | topic: mood | version: v3) -> tired (source: conversation)", got)
}

func TestChooseTemporalTruth(t *testing.T) {
	t.Parallel()
	in := []types.MemoryRecord{
		{ID: 1, Confidence: 0.5, CreatedAt: at},
		{ID: 2, Confidence: 0.9, CreatedAt: at},
		{ID: 3, Confidence: 0.5, CreatedAt: at.Add(time.Hour)},
	}
	got := ChooseTemporalTruth(in)
	assert.Equal(t, []int64{2, 3, 1}, []int64{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, int64(1), in[0].ID, "input is untouched")
}

func TestBuildProfile(t *testing.T) {
	t.Parallel()
	recs := []types.MemoryRecord{
		{Kind: types.KindSemantic, Topic: "b", Source: "notes/b.md"},
		{Kind: types.KindSemantic, Topic: "a", Source: "notes/a.md"},
		{Kind: types.KindEpisodic, Source: "conversation"},
		{Kind: types.KindTemporalTruth, Topic: "a", Source: "conversation"},
	}
	p := BuildProfile(recs)
	assert.Equal(t, 4, p.Total)
	assert.Equal(t, []Count{{"semantic", 2}, {"episodic", 1}, {"temporal_truth", 1}}, p.ByKind)
	assert.Equal(t, []Count{{"a", 2}, {"b", 1}}, p.ByTopic)
	assert.Equal(t, Count{"conversation", 2}, p.BySource[0])

	short := RenderProfile(p)
	assert.Contains(t, short, "Collected memories: 4")
	assert.Contains(t, short, "Top topics: a: 2, b: 1")

	long := RenderProfileReport(p)
	assert.Contains(t, long, "Sources:\n- conversation: 2")

	empty := RenderProfile(BuildProfile(nil))
	assert.Contains(t, empty, "(no topics)")
}

func TestWriter_NamesFiles(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "summaries")
	w := NewWriter(dir, func() time.Time { return at }, discard())

	path, err := w.Write("decay-daily", "body")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "decay-daily-20260314-0926.md"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "body", string(b))
}

func TestDecayReport(t *testing.T) {
	t.Parallel()
	body := DecayReport("daily", []types.DecayedRecord{{
		Record:  types.MemoryRecord{Kind: types.KindSemantic, Confidence: 0.7, Content: strings.Repeat("x", 200)},
		Decayed: 0.35,
	}})
	assert.Contains(t, body, "# Decay report (daily)")
	assert.Contains(t, body, "- semantic | no topic | 0.70 -> 0.35 | "+strings.Repeat("x", 140)+"\n")
	assert.Contains(t, DecayReport("x", nil), "(no records)")
}

func TestTemporalTruthReport(t *testing.T) {
	t.Parallel()
	snap := []types.DecayedRecord{
		{Record: types.MemoryRecord{ID: 4, Kind: types.KindTemporalTruth, Topic: "mood", Content: "happy", Confidence: 0.8,
			Metadata: types.TruthMeta{Version: 2, Supersedes: []int64{1}}}, Decayed: 0.8},
		{Record: types.MemoryRecord{ID: 1, Kind: types.KindTemporalTruth, Topic: "mood", Content: "tired", Confidence: 0.8,
			Metadata: types.TruthMeta{Version: 1}}, Decayed: 0.4},
		{Record: types.MemoryRecord{ID: 2, Kind: types.KindTemporalTruth, Topic: "city", Content: "Izmir", Confidence: 0.8,
			Metadata: types.TruthMeta{Version: 1}}, Decayed: 0.6},
		{Record: types.MemoryRecord{ID: 3, Kind: types.KindSemantic, Topic: "mood"}},
	}
	groups := GroupByTopic(snap)
	require.Len(t, groups, 2)
	require.Len(t, groups["mood"], 2)

	body := TemporalTruthReport(groups)
	assert.Less(t, strings.Index(body, "## city"), strings.Index(body, "## mood"))
	assert.Less(t, strings.Index(body, "v1 | id 1"), strings.Index(body, "v2 | id 4"))
	assert.Contains(t, body, "- v2 | id 4 | 0.80 -> 0.80 | happy | supersedes: 1\n")
	assert.Contains(t, TemporalTruthReport(map[string][]truth.Version{}), "(no versions)")
}

type sinceFake struct {
	since time.Time
	recs  []types.MemoryRecord
}

func (s *sinceFake) MemoriesSince(_ context.Context, since time.Time, _ ...types.Kind) ([]types.MemoryRecord, error) {
	s.since = since
	return s.recs, nil
}

func TestSummarizePeriod(t *testing.T) {
	t.Parallel()
	src := &sinceFake{recs: []types.MemoryRecord{{Kind: types.KindEpisodic, Content: "went hiking"}}}
	gen := llm.NewDummy(discard())
	w := NewWriter(t.TempDir(), func() time.Time { return at }, discard())

	path, err := SummarizePeriod(context.Background(), src, gen, w, Weekly, 64)
	require.NoError(t, err)
	assert.Equal(t, "weekly-summary-20260314-0926.md", filepath.Base(path))
	assert.Equal(t, at.Add(-7*24*time.Hour), src.since)

	hist := gen.History()
	require.Len(t, hist, 1)
	assert.Contains(t, hist[0].User, "(episodic, no topic) went hiking")
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()
	p, err := ParsePeriod("Daily")
	require.NoError(t, err)
	assert.Equal(t, Daily, p)
	assert.Equal(t, 24*time.Hour, p.Horizon())

	_, err = ParsePeriod("monthly")
	assert.ErrorIs(t, err, errs.ErrInvalidConfig)
}
