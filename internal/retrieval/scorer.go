// Package retrieval ranks stored memories against a query embedding by
// cosine similarity weighted with time-decayed confidence.
package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/decay"
	"github.com/xiy/memory-assistant/internal/errs"
	"github.com/xiy/memory-assistant/internal/vecmath"
	"github.com/xiy/memory-assistant/pkg/types"
)

// Lister is the read side of the record store used for candidate fetches.
type Lister interface {
	ListMemories(ctx context.Context, kinds ...types.Kind) ([]types.MemoryRecord, error)
}

// Query describes one ranking request. HalfLifeDays of zero disables decay.
type Query struct {
	Embedding     []float32
	Kinds         []types.Kind
	K             int
	MinSimilarity float64
	HalfLifeDays  float64
}

// Scorer performs full scans over the filtered candidate set.
type Scorer struct {
	lister Lister
	decay  decay.Model
}

// NewScorer builds a scorer reading candidates from lister.
func NewScorer(lister Lister, model decay.Model) *Scorer {
	return &Scorer{lister: lister, decay: model}
}

// TopKSimilar returns at most q.K results with similarity >= q.MinSimilarity,
// sorted by score descending. Equal scores keep the lower id first.
func (s *Scorer) TopKSimilar(ctx context.Context, q Query) ([]types.Scored, error) {
	if q.HalfLifeDays < 0 || math.IsNaN(q.HalfLifeDays) {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "half-life must not be negative", goerr.V("half_life_days", q.HalfLifeDays))
	}
	if math.IsNaN(q.MinSimilarity) {
		return nil, goerr.Wrap(errs.ErrInvalidConfig, "min similarity must be a number")
	}
	if q.K <= 0 {
		return []types.Scored{}, nil
	}

	candidates, err := s.lister.ListMemories(ctx, q.Kinds...)
	if err != nil {
		return nil, goerr.Wrap(err, "fetch candidates")
	}

	results := make([]types.Scored, 0, len(candidates))
	for _, rec := range candidates {
		sim := vecmath.Cosine(rec.Embedding, q.Embedding)
		if sim < q.MinSimilarity {
			continue
		}
		eff := rec.Confidence
		if q.HalfLifeDays > 0 {
			eff, err = s.decay.Decay(rec.Confidence, rec.CreatedAt, q.HalfLifeDays)
			if err != nil {
				return nil, err
			}
		}
		results = append(results, types.Scored{
			Record:              rec,
			Similarity:          sim,
			EffectiveConfidence: eff,
			Score:               sim * eff,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	if len(results) > q.K {
		results = results[:q.K]
	}
	return results, nil
}
