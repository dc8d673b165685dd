// Package truth maintains an append-only, versioned belief log per topic.
package truth

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/embeddings"
	"github.com/xiy/memory-assistant/internal/store"
	"github.com/xiy/memory-assistant/pkg/types"
)

const (
	DefaultConfidence = 0.8
	DefaultSource     = "conversation"
)

// Store is the subset of the record store the versioner needs.
type Store interface {
	ListMemories(ctx context.Context, kinds ...types.Kind) ([]types.MemoryRecord, error)
	AppendTruth(ctx context.Context, topic string, build store.BuildFunc) (types.MemoryRecord, error)
}

// Version is one entry of a topic's history with its confidence evaluated now.
type Version struct {
	Record  types.MemoryRecord `json:"record"`
	Decayed float64            `json:"decayed_confidence"`
}

// Versioner appends new temporal_truth heads.
type Versioner struct {
	store    Store
	embedder embeddings.Provider
	decay    decay.Model
	halfLife float64
	logger   *log.Logger
}

// NewVersioner validates halfLifeDays and returns a versioner.
func NewVersioner(st Store, embedder embeddings.Provider, model decay.Model, halfLifeDays float64, logger *log.Logger) (*Versioner, error) {
	if err := decay.ValidateHalfLife(halfLifeDays); err != nil {
		return nil, err
	}
	return &Versioner{store: st, embedder: embedder, decay: model, halfLife: halfLifeDays, logger: logger}, nil
}

type recordOptions struct {
	confidence float64
	source     string
}

// Option adjusts a single RecordNewTruth call.
type Option func(*recordOptions)

// WithConfidence overrides the default confidence of the new head.
func WithConfidence(c float64) Option {
	return func(o *recordOptions) { o.confidence = c }
}

// WithSource overrides the provenance of the new head.
func WithSource(src string) Option {
	return func(o *recordOptions) { o.source = src }
}

// RecordNewTruth appends a new version for topic. An empty topic is a no-op
// and returns (nil, nil). Every call produces a new version, even for
// identical content.
func (v *Versioner) RecordNewTruth(ctx context.Context, content, topic string, opts ...Option) (*types.MemoryRecord, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, nil
	}
	o := recordOptions{confidence: DefaultConfidence, source: DefaultSource}
	for _, opt := range opts {
		opt(&o)
	}

	emb, err := v.embedder.Embed(ctx, content)
	if err != nil {
		return nil, goerr.Wrap(err, "embed truth", goerr.V("topic", topic))
	}

	rec, err := v.store.AppendTruth(ctx, topic, func(prior []types.MemoryRecord) (types.NewMemory, error) {
		next := 0
		supersedes := make([]int64, 0, len(prior))
		for _, p := range prior {
			decayed, err := v.decay.Decay(p.Confidence, p.CreatedAt, v.halfLife)
			if err != nil {
				return types.NewMemory{}, err
			}
			v.logger.Debug("prior truth", "topic", topic, "id", p.ID, "version", p.Metadata.Version,
				"confidence", p.Confidence, "decayed", decayed)
			if p.Metadata.Version > next {
				next = p.Metadata.Version
			}
			supersedes = append(supersedes, p.ID)
		}
		return types.NewMemory{
			Kind:       types.KindTemporalTruth,
			Content:    content,
			Embedding:  emb,
			Source:     o.source,
			Confidence: types.ClampConfidence(o.confidence),
			Topic:      topic,
			Metadata:   types.TruthMeta{Version: next + 1, Supersedes: supersedes},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	v.logger.Info("recorded truth", "topic", topic, "id", rec.ID, "version", rec.Metadata.Version)
	return &rec, nil
}

// History returns all versions of topic, oldest version first.
func (v *Versioner) History(ctx context.Context, topic string) ([]Version, error) {
	topic = strings.TrimSpace(topic)
	recs, err := v.store.ListMemories(ctx, types.KindTemporalTruth)
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0)
	for _, r := range recs {
		if r.Topic != topic {
			continue
		}
		d, err := v.decay.Decay(r.Confidence, r.CreatedAt, v.halfLife)
		if err != nil {
			return nil, err
		}
		out = append(out, Version{Record: r, Decayed: d})
	}
	SortVersions(out)
	return out, nil
}

// Current returns the highest version of topic, or nil when none exist.
func (v *Versioner) Current(ctx context.Context, topic string) (*Version, error) {
	hist, err := v.History(ctx, topic)
	if err != nil || len(hist) == 0 {
		return nil, err
	}
	head := hist[len(hist)-1]
	return &head, nil
}

// SortVersions orders by version, then id.
func SortVersions(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i].Record, vs[j].Record
		if a.Metadata.Version != b.Metadata.Version {
			return a.Metadata.Version < b.Metadata.Version
		}
		return a.ID < b.ID
	})
}
