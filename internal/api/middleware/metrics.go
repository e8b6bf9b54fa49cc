package middleware

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
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kubelease_http_requests_total",
		Help: "Chat API requests by route pattern and response status",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kubelease_http_request_duration_seconds",
		Help:    "Chat API request latency, excluding upgraded chat sessions",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	responseBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kubelease_http_response_bytes_total",
		Help: "Bytes written in chat API response bodies",
	}, []string{"route"})

	chatSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kubelease_chat_sessions_open",
		Help: "Chat connections currently upgraded to a websocket",
	})
)

// Metrics counts chat API traffic by chi route pattern. A request that
// upgrades to a websocket is counted once with status 101; its lifetime is
// tracked by kubelease_chat_sessions_open instead of the latency histogram.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := wrap(w, r)

		upgrading := r.Header.Get("Upgrade") != ""
		if upgrading {
			chatSessions.Inc()
			defer chatSessions.Dec()
		}

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := statusOf(ww)
		requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		responseBytes.WithLabelValues(route).Add(float64(ww.BytesWritten()))
		if status != http.StatusSwitchingProtocols {
			requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

// wrap reuses an already wrapped writer so stacked middleware share one
// status. chi's wrapper forwards Hijack, which the chat upgrade needs.
func wrap(w http.ResponseWriter, r *http.Request) middleware.WrapResponseWriter {
	if ww, ok := w.(middleware.WrapResponseWriter); ok {
		return ww
	}
	return middleware.NewWrapResponseWriter(w, r.ProtoMajor)
}

func statusOf(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
