package http

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the client-side Prometheus collectors.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	refreshes *prometheus.CounterVec
}

// Refresh outcomes.
const (
	RefreshSucceeded = "success"
	RefreshFailed    = "failure"
	RefreshNoToken   = "no_refresh_token"
	RefreshReplay401 = "replay_unauthorized"
	RefreshDiscarded = "session_changed"
	RefreshRejected  = "known_rejected"
)

// NewMetrics creates the collectors and registers them with reg. A nil reg uses a private registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedclient",
				Name:      "http_requests_total",
				Help:      "API requests sent, by method and status code (\"error\" for transport failures).",
			},
			[]string{"method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "feedclient",
				Name:      "http_request_duration_seconds",
				Help:      "API request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "feedclient",
			Name:      "http_in_flight_requests",
			Help:      "API requests currently in flight.",
		}),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "feedclient",
				Name:      "token_refresh_total",
				Help:      "Access-token refresh attempts by outcome.",
			},
			[]string{"outcome"},
		),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.inFlight, m.refreshes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) start() func(method string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	begin := time.Now()
	m.inFlight.Inc()
	return func(method string, status int) {
		m.inFlight.Dec()
		label := "error"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		m.requests.WithLabelValues(method, label).Inc()
		m.duration.WithLabelValues(method).Observe(time.Since(begin).Seconds())
	}
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}
