package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"mastrogpt/internal/types"
)

// Metrics are registered on the server's own registry.
type Metrics struct {
	ActionCalls    *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	RateLimited    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActionCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mastrogpt_action_calls_total",
				Help: "Web action invocations by action and status code",
			},
			[]string{"action", "status"},
		),
		ActionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mastrogpt_action_duration_seconds",
				Help:    "Web action latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "mastrogpt_rate_limited_total",
			Help: "Requests rejected by the global rate limiter",
		}),
	}
}

func (m *Metrics) observe(action string, status int, took time.Duration) {
	m.ActionCalls.WithLabelValues(action, strconv.Itoa(status)).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(took.Seconds())
}

// RateLimit rejects requests above rps with 429. A non-positive rps
// disables the limiter.
func RateLimit(rps, burst int, m *Metrics) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = rps
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				m.RateLimited.Inc()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
