// Package reporter writes decay reports on a fixed interval while the
// server runs.
package reporter

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/xiy/memory-assistant/internal/metrics"
	"github.com/xiy/memory-assistant/internal/report"
	"github.com/xiy/memory-assistant/pkg/types"
)

const reportName = "decay"

// Snapshotter evaluates decay over stored records.
type Snapshotter interface {
	DecaySnapshot(ctx context.Context, kinds []string, halfLife *float64) ([]types.DecayedRecord, error)
}

// Start blocks until ctx is done, writing one decay report per tick. A
// non-positive interval returns immediately.
func Start(ctx context.Context, logger *log.Logger, interval time.Duration, src Snapshotter, w *report.Writer) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := RunOnce(ctx, src, w); err != nil {
				logger.Warn("decay report failed", "error", err)
			}
		}
	}
}

// RunOnce writes a single report and returns its path.
func RunOnce(ctx context.Context, src Snapshotter, w *report.Writer) (string, error) {
	snap, err := src.DecaySnapshot(ctx, nil, nil)
	if err != nil {
		return "", err
	}
	path, err := w.Write(reportName, report.DecayReport("scheduled", snap))
	if err != nil {
		return "", err
	}
	metrics.ReportsWritten.WithLabelValues(reportName).Inc()
	return path, nil
}
