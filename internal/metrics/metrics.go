// Package metrics provides Prometheus instrumentation for the trade engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesOpened counts admitted trades, partitioned by venue.
	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_trades_opened_total",
		Help: "Total number of trades admitted to the ledger",
	}, []string{"venue"})

	// TradesClosed counts completed OPEN→CLOSED transitions by venue.
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_trades_closed_total",
		Help: "Total number of trades closed",
	}, []string{"venue"})

	// RiskRejections counts admissions refused by the risk gate,
	// partitioned by the failed check.
	RiskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_risk_rejections_total",
		Help: "Trade submissions rejected by the risk gate",
	}, []string{"check"})

	// AdmitLatency tracks end-to-end trade admission latency.
	AdmitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "desk_admit_latency_seconds",
		Help:    "Trade admission latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MirrorMisses counts OTC closes that could not locate their mirror leg.
	MirrorMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_otc_mirror_misses_total",
		Help: "OTC closes whose mirrored leg could not be found",
	})

	// LeaderboardRequests counts full leaderboard recomputations.
	LeaderboardRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "desk_leaderboard_requests_total",
		Help: "Leaderboard recomputations served",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "desk_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "desk_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "desk_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route shapes are few enough
		// to keep cardinality in check.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
