package decay

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiy/memory-assistant/internal/errs"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedModel() Model {
	return New(func() time.Time { return fixedNow })
}

func TestDecay_ZeroAgeKeepsConfidence(t *testing.T) {
	t.Parallel()
	got, err := fixedModel().Decay(0.7, fixedNow, 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got, 1e-12)
}

func TestDecay_OneHalfLifeHalves(t *testing.T) {
	t.Parallel()
	got, err := fixedModel().Decay(0.8, fixedNow.Add(-10*24*time.Hour), 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got, 1e-9)
}

func TestDecay_MonotonicInAge(t *testing.T) {
	t.Parallel()
	m := fixedModel()
	prev := 1.0
	for _, days := range []float64{0, 0.5, 1, 3, 7, 30, 90, 365} {
		created := fixedNow.Add(-time.Duration(days * 24 * float64(time.Hour)))
		got, err := m.Decay(1.0, created, 14)
		require.NoError(t, err)
		assert.LessOrEqual(t, got, prev, "age %v days", days)
		if days > 0 {
			assert.Less(t, got, prev, "strictly decreasing at %v days", days)
		}
		prev = got
	}
}

func TestDecay_Clamps(t *testing.T) {
	t.Parallel()
	m := fixedModel()

	got, err := m.Decay(1.5, fixedNow, 30)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = m.Decay(-0.2, fixedNow, 30)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	got, err = m.Decay(0.5, fixedNow.Add(48*time.Hour), 30)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-12, "future timestamps do not raise confidence")
}

func TestDecay_RejectsNonPositiveHalfLife(t *testing.T) {
	t.Parallel()
	for _, h := range []float64{0, -1} {
		_, err := fixedModel().Decay(0.5, fixedNow, h)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrInvalidConfig))
	}
}
