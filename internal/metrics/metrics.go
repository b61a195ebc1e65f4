// Package metrics holds the prometheus collectors shared by the server and the worker.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PipelineStages counts pipeline stage runs by stage and outcome
	PipelineStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_pipeline_stage_total",
			Help: "Pipeline stage executions by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// ProviderRequests counts outbound calls by provider and outcome
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_provider_requests_total",
			Help: "Outbound provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ProviderLatency observes outbound call latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_provider_request_duration_seconds",
			Help:    "Outbound provider request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// SpotPriceFallbacks counts spot price lookups answered by the secondary provider
	SpotPriceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portfolio_spot_price_fallback_total",
			Help: "Spot price lookups answered by the fallback provider",
		},
	)

	// FXFallbacks counts FX conversions that degraded to a rate of 1.0
	FXFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_fx_fallback_total",
			Help: "FX lookups that fell back to a rate of 1.0",
		},
		[]string{"currency"},
	)

	// SweepAssets counts per-asset sweep results by job and outcome
	SweepAssets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_price_sweep_assets_total",
			Help: "Per asset results of price sweeps",
		},
		[]string{"job", "outcome"},
	)

	// HTTPRequests counts API requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_http_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPLatency observes API latency
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveProvider records the outcome and latency of one provider call
func ObserveProvider(provider string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveStage records the outcome of one pipeline stage
func ObserveStage(stage string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	PipelineStages.WithLabelValues(stage, outcome).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
