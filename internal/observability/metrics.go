package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream protocol calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	fetchResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_fetch_results_total",
			Help: "Bbox fetch results per stream by outcome.",
		},
		[]string{"stream", "outcome"},
	)

	tileFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_fetches_total",
			Help: "Tile protocol fetches by outcome.",
		},
		[]string{"outcome"},
	)

	openTileHandles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tile_handles_open",
			Help: "Tile image handles created and not yet released.",
		},
	)

	clickResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "click_resolutions_total",
			Help: "Click resolutions by terminal outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func IncFetchResult(stream, outcome string) {
	fetchResultsTotal.WithLabelValues(stream, outcome).Inc()
}

func IncTileFetch(outcome string) {
	tileFetchesTotal.WithLabelValues(outcome).Inc()
}

func TileHandleOpened()   { openTileHandles.Inc() }
func TileHandleReleased() { openTileHandles.Dec() }

func IncClickResolution(outcome string) {
	clickResolutionsTotal.WithLabelValues(outcome).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
