package memory

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/config"
	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/embeddings"
	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/metrics"
	"github.com/xiy/memory-assistant/internal/report"
	"github.com/xiy/memory-assistant/internal/retrieval"
	"github.com/xiy/memory-assistant/internal/store"
	"github.com/xiy/memory-assistant/internal/truth"
	"github.com/xiy/memory-assistant/pkg/types"
)

// DefaultConfidence is applied when an ingest does not set one.
var DefaultConfidence = map[types.Kind]float64{
	types.KindEpisodic:      0.6,
	types.KindSemantic:      0.7,
	types.KindTemporalTruth: truth.DefaultConfidence,
}

// Service coordinates embedding, storage, ranking and truth versioning.
type Service struct {
	store    store.Store
	embedder embeddings.Provider
	scorer   *retrieval.Scorer
	truth    *truth.Versioner
	decay    decay.Model
	cfg      config.Config
	logger   *log.Logger
}

// NewService constructs a memory service.
func NewService(st store.Store, embedder embeddings.Provider, model decay.Model, cfg config.Config, logger *log.Logger) (*Service, error) {
	v, err := truth.NewVersioner(st, embedder, model, cfg.Memory.DecayHalfLifeDays, logger)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:    st,
		embedder: embedder,
		scorer:   retrieval.NewScorer(st, model),
		truth:    v,
		decay:    model,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Ingest embeds and stores one record. temporal_truth writes go through the
// versioner so they always carry a version.
func (s *Service) Ingest(ctx context.Context, in types.IngestInput) (int64, error) {
	kind, err := types.ParseKind(in.Kind)
	if err != nil {
		return 0, goerr.Wrap(errs.ErrInvalidConfig, "invalid kind", goerr.V("kind", in.Kind))
	}
	if strings.TrimSpace(in.Content) == "" {
		return 0, goerr.Wrap(errs.ErrInvalidConfig, "content must not be empty")
	}
	conf := DefaultConfidence[kind]
	if in.Confidence != nil {
		if math.IsNaN(*in.Confidence) {
			return 0, goerr.Wrap(errs.ErrInvalidConfig, "confidence must be a number")
		}
		conf = types.ClampConfidence(*in.Confidence)
	}

	if kind == types.KindTemporalTruth {
		if strings.TrimSpace(in.Topic) == "" {
			return 0, goerr.Wrap(errs.ErrInvalidConfig, "temporal_truth requires a topic")
		}
		rec, err := s.RecordTruth(ctx, types.TruthInput{Topic: in.Topic, Content: in.Content, Confidence: &conf, Source: in.Source})
		if err != nil {
			return 0, err
		}
		return rec.ID, nil
	}

	emb, err := s.embed(ctx, in.Content)
	if err != nil {
		return 0, err
	}
	nm := types.NewMemory{
		Kind:       kind,
		Content:    in.Content,
		Embedding:  emb,
		Source:     in.Source,
		Confidence: conf,
		Topic:      strings.TrimSpace(in.Topic),
	}
	id, err := s.store.InsertMemory(ctx, nm)
	if err != nil {
		return 0, err
	}
	metrics.MemoriesIngested.WithLabelValues(string(kind)).Inc()
	s.logger.Debug("ingested memory", "id", id, "kind", kind, "source", nm.Source)
	return id, nil
}

// RecordTruth appends a new version for in.Topic. An empty topic returns
// (nil, nil).
func (s *Service) RecordTruth(ctx context.Context, in types.TruthInput) (*types.MemoryRecord, error) {
	opts := []truth.Option{}
	if in.Confidence != nil {
		if math.IsNaN(*in.Confidence) {
			return nil, goerr.Wrap(errs.ErrInvalidConfig, "confidence must be a number", goerr.V("topic", in.Topic))
		}
		opts = append(opts, truth.WithConfidence(*in.Confidence))
	}
	if in.Source != "" {
		opts = append(opts, truth.WithSource(in.Source))
	}
	rec, err := s.truth.RecordNewTruth(ctx, in.Content, in.Topic, opts...)
	if err != nil {
		if errors.Is(err, errs.ErrProviderFailure) {
			metrics.ProviderErrors.WithLabelValues("embedding").Inc()
		}
		return nil, err
	}
	if rec != nil {
		metrics.MemoriesIngested.WithLabelValues(string(types.KindTemporalTruth)).Inc()
		metrics.TruthVersions.Inc()
	}
	return rec, nil
}

// TruthHistory returns every version of topic, oldest first.
func (s *Service) TruthHistory(ctx context.Context, topic string) ([]truth.Version, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "topic is required")
	}
	return s.truth.History(ctx, topic)
}

// Search ranks stored records against in.Query. Unset fields fall back to
// the memory section of the config.
func (s *Service) Search(ctx context.Context, in types.SearchInput) ([]types.Scored, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "query is required")
	}
	kinds, err := parseKinds(in.Kinds)
	if err != nil {
		return nil, err
	}
	k := in.K
	if k <= 0 {
		k = s.cfg.Memory.TopK
	} else if k > config.MaxTopK {
		k = config.MaxTopK
	}
	minSim := s.cfg.Memory.MinSimilarity
	if in.MinSimilarity != nil {
		minSim = *in.MinSimilarity
	}
	halfLife := s.cfg.Memory.DecayHalfLifeDays
	if in.HalfLifeDays != nil {
		halfLife = *in.HalfLifeDays
	}

	start := time.Now()
	emb, err := s.embed(ctx, in.Query)
	if err != nil {
		return nil, err
	}
	results, err := s.scorer.TopKSimilar(ctx, retrieval.Query{
		Embedding:     emb,
		Kinds:         kinds,
		K:             k,
		MinSimilarity: minSim,
		HalfLifeDays:  halfLife,
	})
	if err != nil {
		return nil, err
	}
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	metrics.RetrievalResults.Observe(float64(len(results)))
	return results, nil
}

// RetrieveContext returns formatted snippets for query using config defaults.
func (s *Service) RetrieveContext(ctx context.Context, query string) ([]string, error) {
	results, err := s.Search(ctx, types.SearchInput{Query: query})
	if err != nil {
		return nil, err
	}
	return report.Snippets(results), nil
}

// LogMessage appends a turn to the message log.
func (s *Service) LogMessage(ctx context.Context, role types.Role, content string) error {
	return s.store.InsertMessage(ctx, role, content)
}

// RecentMessages returns the newest limit turns in chronological order.
func (s *Service) RecentMessages(ctx context.Context, limit int) ([]types.Message, error) {
	return s.store.LastMessages(ctx, limit)
}

// WorkingMemory renders the configured message window as "role: content".
func (s *Service) WorkingMemory(ctx context.Context) ([]string, error) {
	msgs, err := s.store.LastMessages(ctx, s.cfg.Working.Window)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, string(m.Role)+": "+m.Content)
	}
	return lines, nil
}

// DecaySnapshot evaluates decay for kinds (all persisted kinds when empty).
func (s *Service) DecaySnapshot(ctx context.Context, kinds []string, halfLife *float64) ([]types.DecayedRecord, error) {
	ks, err := parseKinds(kinds)
	if err != nil {
		return nil, err
	}
	h := s.cfg.Memory.DecayHalfLifeDays
	if halfLife != nil {
		h = *halfLife
	}
	return s.store.DecaySnapshot(ctx, s.decay, h, ks...)
}

// Profile aggregates every stored record.
func (s *Service) Profile(ctx context.Context) (report.Profile, []types.MemoryRecord, error) {
	recs, err := s.store.ListMemories(ctx, types.PersistedKinds...)
	if err != nil {
		return report.Profile{}, nil, err
	}
	return report.BuildProfile(recs), recs, nil
}

// ProfileSummary renders the five strongest memories followed by the
// profile counts. verbose appends the full per-bucket report.
func (s *Service) ProfileSummary(ctx context.Context, verbose bool) (string, error) {
	p, recs, err := s.Profile(ctx)
	if err != nil {
		return "", err
	}
	chosen := report.ChooseTemporalTruth(recs)
	if len(chosen) > 5 {
		chosen = chosen[:5]
	}
	lines := []string{"Memory highlights:"}
	for _, r := range chosen {
		lines = append(lines, report.Snippet(r))
	}
	lines = append(lines, "", report.RenderProfile(p))
	if verbose {
		lines = append(lines, "", report.RenderProfileReport(p))
	}
	return strings.Join(lines, "\n"), nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := s.embedder.Embed(ctx, text)
	if err != nil {
		metrics.ProviderErrors.WithLabelValues("embedding").Inc()
		return nil, goerr.Wrap(err, "embed text")
	}
	return emb, nil
}

func parseKinds(in []string) ([]types.Kind, error) {
	if len(in) == 0 {
		return types.PersistedKinds, nil
	}
	out := make([]types.Kind, 0, len(in))
	for _, raw := range in {
		k, err := types.ParseKind(raw)
		if err != nil {
			return nil, goerr.Wrap(errs.ErrInvalidConfig, "invalid kind", goerr.V("kind", raw))
		}
		out = append(out, k)
	}
	return out, nil
}
