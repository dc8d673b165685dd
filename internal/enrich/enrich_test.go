package enrich

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/xiy/memory-assistant/internal/config"
)

type brokenClient struct {
	ingests int
}

func (b *brokenClient) Ingest(context.Context, string, map[string]string) error {
	b.ingests++
	return errors.New("graph offline")
}

func (b *brokenClient) Query(context.Context, string, int) ([]string, error) {
	return []string{"partial"}, errors.New("graph offline")
}

func TestSafe_SwallowsFailures(t *testing.T) {
	t.Parallel()
	inner := &brokenClient{}
	s := NewSafe(inner, log.NewWithOptions(io.Discard, log.Options{}))

	s.Ingest(context.Background(), "x", map[string]string{"kind": "episodic"})
	assert.Equal(t, 1, inner.ingests)
	assert.Nil(t, s.Query(context.Background(), "x", 3))
}

func TestSafe_DefaultsToNoop(t *testing.T) {
	t.Parallel()
	s := NewSafe(nil, log.NewWithOptions(io.Discard, log.Options{}))
	assert.Empty(t, s.Query(context.Background(), "x", 3))
}

func TestBuild_AlwaysNoop(t *testing.T) {
	t.Parallel()
	c := Build(config.Enrich{Enabled: true, Endpoint: "http://graph"}, log.NewWithOptions(io.Discard, log.Options{}))
	assert.IsType(t, Noop{}, c)
}
