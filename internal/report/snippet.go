// Package report renders read-only views over stored memories: prompt
// snippets, profiles and markdown reports.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xiy/memory-assistant/pkg/types"
)

const snippetTime = "2006-01-02 15:04"

// Snippet formats rec for prompts and reports. Field order and the
// two-decimal confidence are relied on downstream.
func Snippet(rec types.MemoryRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (confidence %.2f", rec.CreatedAt.Local().Format(snippetTime), rec.Kind, rec.Confidence)
	if rec.Topic != "" {
		fmt.Fprintf(&b, " | topic: %s", rec.Topic)
	}
	if rec.Metadata.Version > 0 {
		fmt.Fprintf(&b, " | version: v%d", rec.Metadata.Version)
	}
	fmt.Fprintf(&b, ") -> %s (source: %s)", rec.Content, rec.Source)
	return b.String()
}

// Snippets formats every scored record in order.
func Snippets(results []types.Scored) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, Snippet(r.Record))
	}
	return out
}

// ChooseTemporalTruth orders records by confidence, then by recency, both
// descending. The input is not modified.
func ChooseTemporalTruth(records []types.MemoryRecord) []types.MemoryRecord {
	out := append([]types.MemoryRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
