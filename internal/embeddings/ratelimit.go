package embeddings

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/xiy/memory-assistant/internal/errs"
)

// RateLimited throttles calls to a remote provider.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited allows rpm requests per minute with a burst of one.
func NewRateLimited(inner Provider, rpm int) *RateLimited {
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}
}

func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(errs.ErrProviderFailure, "embedding rate limit wait", goerr.V("cause", err.Error()))
	}
	return r.inner.Embed(ctx, text)
}
