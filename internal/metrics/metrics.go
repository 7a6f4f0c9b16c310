// Package metrics provides Prometheus instrumentation for the curve engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts executed trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curve_trades_total",
		Help: "Total number of trades executed",
	}, []string{"side"})

	// TradeLatency is the end-to-end execution time including retries.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curve_trade_latency_seconds",
		Help:    "Trade execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// TradeRejections counts trades refused, by reason code.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curve_trade_rejections_total",
		Help: "Trades rejected before execution, by reason",
	}, []string{"reason"})

	// StateConflicts counts optimistic-concurrency retries.
	StateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curve_state_conflicts_total",
		Help: "Reserve updates retried after a concurrent write",
	})

	// QuotesServed counts read-only quotes, by side.
	QuotesServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curve_quotes_total",
		Help: "Quotes served",
	}, []string{"side"})

	// Graduations counts curves that crossed the graduation threshold.
	Graduations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curve_graduations_total",
		Help: "Bonding curves graduated",
	})

	// TokensCreated counts launched tokens.
	TokensCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curve_tokens_created_total",
		Help: "Tokens launched",
	})

	// SolVolume tracks cumulative lamports moved through curves.
	SolVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curve_sol_volume_lamports_total",
		Help: "Cumulative SOL volume in lamports",
	}, []string{"side"})

	// FeesCollected tracks cumulative fees, by recipient.
	FeesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curve_fees_lamports_total",
		Help: "Cumulative fees in lamports",
	}, []string{"recipient"})

	// WSClients tracks connected WebSocket clients.
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "curve_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// EventsDropped counts events the WebSocket hub could not queue.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curve_ws_events_dropped_total",
		Help: "Events dropped because the broadcast buffer was full",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curve_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curve_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi pattern so ids don't explode label
// cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
