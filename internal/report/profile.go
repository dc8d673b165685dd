package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xiy/memory-assistant/pkg/types"
)

// Count is one frequency bucket.
type Count struct {
	Key string `json:"key"`
	N   int    `json:"count"`
}

// Profile aggregates a record set.
type Profile struct {
	Total    int     `json:"total"`
	ByKind   []Count `json:"by_kind"`
	ByTopic  []Count `json:"by_topic"`
	BySource []Count `json:"by_source"`
}

// BuildProfile counts records by kind, topic and source. Empty topics and
// sources are skipped. Buckets are sorted by count descending, then key.
func BuildProfile(records []types.MemoryRecord) Profile {
	kinds := map[string]int{}
	topics := map[string]int{}
	sources := map[string]int{}
	for _, r := range records {
		kinds[string(r.Kind)]++
		if r.Topic != "" {
			topics[r.Topic]++
		}
		if r.Source != "" {
			sources[r.Source]++
		}
	}
	return Profile{
		Total:    len(records),
		ByKind:   sortedCounts(kinds),
		ByTopic:  sortedCounts(topics),
		BySource: sortedCounts(sources),
	}
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, n := range m {
		out = append(out, Count{Key: k, N: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func joinCounts(cs []Count, limit int, empty string) string {
	if len(cs) == 0 {
		return empty
	}
	if limit > 0 && len(cs) > limit {
		cs = cs[:limit]
	}
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		parts = append(parts, fmt.Sprintf("%s: %d", c.Key, c.N))
	}
	return strings.Join(parts, ", ")
}

// RenderProfile is the short profile shown by `profile`.
func RenderProfile(p Profile) string {
	return strings.Join([]string{
		fmt.Sprintf("Collected memories: %d", p.Total),
		fmt.Sprintf("By kind: %s", joinCounts(p.ByKind, 0, "(none)")),
		fmt.Sprintf("Top topics: %s", joinCounts(p.ByTopic, 5, "(no topics)")),
	}, "\n")
}

// RenderProfileReport lists every bucket.
func RenderProfileReport(p Profile) string {
	var b strings.Builder
	b.WriteString("Profile report\n")
	section := func(title string, cs []Count) {
		fmt.Fprintf(&b, "\n%s:\n", title)
		if len(cs) == 0 {
			b.WriteString("- (none)\n")
			return
		}
		for _, c := range cs {
			fmt.Fprintf(&b, "- %s: %d\n", c.Key, c.N)
		}
	}
	section("Kinds", p.ByKind)
	section("Topics", p.ByTopic)
	section("Sources", p.BySource)
	return strings.TrimRight(b.String(), "\n")
}
