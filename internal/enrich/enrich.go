// Package enrich is the optional external knowledge source consulted during
// chat. Failures never abort the caller.
package enrich

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/xiy/memory-assistant/internal/config"
)

// Client ingests text into and queries an external store.
type Client interface {
	Ingest(ctx context.Context, text string, meta map[string]string) error
	Query(ctx context.Context, text string, k int) ([]string, error)
}

// Noop is the default client.
type Noop struct{}

func (Noop) Ingest(context.Context, string, map[string]string) error { return nil }

func (Noop) Query(context.Context, string, int) ([]string, error) { return nil, nil }

// Safe calls a Client and turns every failure into a logged no-op.
type Safe struct {
	inner  Client
	logger *log.Logger
}

func NewSafe(inner Client, logger *log.Logger) *Safe {
	if inner == nil {
		inner = Noop{}
	}
	return &Safe{inner: inner, logger: logger}
}

// Ingest forwards text; errors are logged at debug level and dropped.
func (s *Safe) Ingest(ctx context.Context, text string, meta map[string]string) {
	if err := s.inner.Ingest(ctx, text, meta); err != nil {
		s.logger.Debug("enrich ingest skipped", "error", err)
	}
}

// Query returns nil when the inner client fails.
func (s *Safe) Query(ctx context.Context, text string, k int) []string {
	out, err := s.inner.Query(ctx, text, k)
	if err != nil {
		s.logger.Debug("enrich query skipped", "error", err)
		return nil
	}
	return out
}

// Build returns the client for cfg. No remote client ships yet, so an
// enabled section only produces a warning.
func Build(cfg config.Enrich, logger *log.Logger) Client {
	if cfg.Enabled {
		logger.Warn("enrich endpoint configured but no remote client is available; using no-op", "endpoint", cfg.Endpoint)
	}
	return Noop{}
}
