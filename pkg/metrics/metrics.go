// Package metrics exposes Prometheus metrics for the flywheel.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flywheel_build_info",
			Help: "Build information of the flywheel",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flywheel_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flywheel_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Cycle metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheel_cycles_total",
			Help: "Total number of flywheel cycles",
		},
		[]string{"result"}, // "ok", "error", "skipped"
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flywheel_cycle_duration_seconds",
			Help:    "Duration of flywheel cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~256s
		},
	)

	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheel_claims_total",
			Help: "Total number of creator-fee claim attempts",
		},
		[]string{"result"}, // "ok", "error"
	)

	LamportsClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flywheel_lamports_claimed_total",
			Help: "Total lamports collected from creator-fee claims",
		},
	)

	BuysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheel_buys_total",
			Help: "Total number of executed buys",
		},
		[]string{"venue"}, // "jupiter", "pumpportal"
	)

	SolSpentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flywheel_sol_spent_total",
			Help: "Total SOL spent on buys",
		},
	)

	TokensDisposedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flywheel_tokens_disposed_total",
			Help: "Total raw token amount disposed of by terminals",
		},
		[]string{"terminal"}, // "burn", "airdrop"
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flywheel_event_subscribers",
			Help: "Number of connected event stream subscribers",
		},
	)

	EntrantsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flywheel_entrants_registered_total",
			Help: "Total number of accepted keyword entries",
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordCycle records the outcome of a completed cycle.
func RecordCycle(result string, duration time.Duration) {
	CyclesTotal.WithLabelValues(result).Inc()
	if result != "skipped" {
		CycleDuration.Observe(duration.Seconds())
	}
}

// RecordClaim records a claim attempt and the lamports it collected.
func RecordClaim(err error, lamports uint64) {
	if err != nil {
		ClaimsTotal.WithLabelValues("error").Inc()
		return
	}
	ClaimsTotal.WithLabelValues("ok").Inc()
	LamportsClaimedTotal.Add(float64(lamports))
}

// RecordBuy records an executed buy.
func RecordBuy(venue string, amountSOL float64) {
	BuysTotal.WithLabelValues(venue).Inc()
	SolSpentTotal.Add(amountSOL)
}

// RecordDisposal records a terminal disposing of tokens.
func RecordDisposal(terminal string, amountRaw uint64) {
	TokensDisposedTotal.WithLabelValues(terminal).Add(float64(amountRaw))
}
