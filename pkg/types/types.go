package types

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the category of a persisted memory record.
type Kind string

const (
	KindEpisodic      Kind = "episodic"
	KindSemantic      Kind = "semantic"
	KindTemporalTruth Kind = "temporal_truth"

	// KindProcedural and KindWorking are reserved names. Procedural rules live
	// in configuration and working memory is the recent message window, so
	// neither is ever written to the memories table.
	KindProcedural Kind = "procedural"
	KindWorking    Kind = "working"
)

// PersistedKinds lists every kind the store accepts, in display order.
var PersistedKinds = []Kind{KindEpisodic, KindSemantic, KindTemporalTruth}

// ParseKind maps a stored or user-supplied string to a persisted kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(strings.ToLower(s)))
	if k.Persisted() {
		return k, nil
	}
	return "", fmt.Errorf("unknown memory kind %q", s)
}

// Persisted reports whether records of this kind live in the memories table.
func (k Kind) Persisted() bool {
	switch k {
	case KindEpisodic, KindSemantic, KindTemporalTruth:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Role is the speaker of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// TruthMeta is the metadata carried by temporal_truth records.
type TruthMeta struct {
	Version    int     `json:"version,omitempty"`
	Supersedes []int64 `json:"supersedes,omitempty"`
}

// IsZero reports whether no metadata was set.
func (m TruthMeta) IsZero() bool {
	return m.Version == 0 && len(m.Supersedes) == 0
}

// MemoryRecord represents one persisted memory item.
type MemoryRecord struct {
	ID         int64     `json:"id"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source,omitempty"`
	Confidence float64   `json:"confidence"`
	Topic      string    `json:"topic,omitempty"`
	Metadata   TruthMeta `json:"metadata"`
}

// NewMemory describes a memory write. The store assigns ID and CreatedAt.
type NewMemory struct {
	Kind       Kind
	Content    string
	Embedding  []float32
	Source     string
	Confidence float64
	Topic      string
	Metadata   TruthMeta
}

// Message is one turn of the running conversation.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DecayedRecord pairs a record with its confidence evaluated at read time.
type DecayedRecord struct {
	Record  MemoryRecord `json:"record"`
	Decayed float64      `json:"decayed_confidence"`
}

// Scored is a ranked retrieval result.
type Scored struct {
	Record              MemoryRecord `json:"record"`
	Similarity          float64      `json:"similarity"`
	EffectiveConfidence float64      `json:"effective_confidence"`
	Score               float64      `json:"score"`
}

// ClampConfidence bounds c to [0, 1]. NaN is returned unchanged so that the
// store rejects it.
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// IngestInput is the tool/API shape of a memory write. A nil Confidence
// means the per-kind default.
type IngestInput struct {
	Kind       string   `json:"kind"`
	Content    string   `json:"content"`
	Source     string   `json:"source,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Topic      string   `json:"topic,omitempty"`
}

// SearchInput is used for similarity search operations.
type SearchInput struct {
	Query         string   `json:"query"`
	Kinds         []string `json:"kinds,omitempty"`
	K             int      `json:"k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	HalfLifeDays  *float64 `json:"half_life_days,omitempty"`
}

// TruthInput records a new belief about a topic.
type TruthInput struct {
	Topic      string   `json:"topic"`
	Content    string   `json:"content"`
	Confidence *float64 `json:"confidence,omitempty"`
	Source     string   `json:"source,omitempty"`
}
