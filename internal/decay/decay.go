// Package decay converts stored confidence into effective confidence at
// query time using an exponential half-life.
package decay

import (
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/xiy/memory-assistant/internal/errs"
)

const secondsPerDay = 86400.0

// Model evaluates decay against an injected clock.
type Model struct {
	now func() time.Time
}

// New returns a Model reading time from clock. A nil clock means time.Now.
func New(clock func() time.Time) Model {
	if clock == nil {
		clock = time.Now
	}
	return Model{now: clock}
}

// Now returns the model's evaluation time.
func (m Model) Now() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// Decay returns confidence * 0.5^(age_days/halfLifeDays), clamped to [0, 1].
// Records stamped in the future are treated as zero age, so decay never
// raises confidence.
func (m Model) Decay(confidence float64, createdAt time.Time, halfLifeDays float64) (float64, error) {
	if err := ValidateHalfLife(halfLifeDays); err != nil {
		return 0, err
	}
	ageDays := m.Now().Sub(createdAt).Seconds() / secondsPerDay
	if ageDays < 0 {
		ageDays = 0
	}
	factor := math.Pow(0.5, ageDays/halfLifeDays)
	return clamp(confidence * factor), nil
}

// ValidateHalfLife rejects non-positive or non-finite half-lives.
func ValidateHalfLife(halfLifeDays float64) error {
	if halfLifeDays <= 0 || math.IsNaN(halfLifeDays) || math.IsInf(halfLifeDays, 0) {
		return goerr.Wrap(errs.ErrInvalidConfig, "half-life must be a positive number of days",
			goerr.V("half_life_days", halfLifeDays))
	}
	return nil
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
