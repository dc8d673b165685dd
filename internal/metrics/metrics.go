// Package metrics exposes Prometheus collectors for the memory subsystem.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assistant"

var (
	// MemoriesIngested counts stored records by kind.
	MemoriesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_ingested_total",
			Help:      "Memory records written, by kind",
		},
		[]string{"kind"},
	)

	// TruthVersions counts temporal truth heads appended.
	TruthVersions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truth_versions_total",
			Help:      "Temporal truth versions appended",
		},
	)

	// RetrievalDuration observes TopKSimilar latency, embedding included.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Latency of similarity retrieval",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RetrievalResults observes how many records a retrieval returned.
	RetrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_results",
			Help:      "Number of records returned per retrieval",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	// ProviderErrors counts embedding and generation failures.
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Embedding or generation provider failures",
		},
		[]string{"provider"},
	)

	// MCPRequests counts handled MCP requests.
	MCPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mcp_requests_total",
			Help:      "MCP requests handled, by method, tool and outcome",
		},
		[]string{"method", "tool", "success"},
	)

	// ReportsWritten counts markdown reports written by the reporter worker.
	ReportsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_written_total",
			Help:      "Reports written, by report type",
		},
		[]string{"report"},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr
// disables the endpoint.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
