package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector holds the HTTP server metrics and the path they are served on.
type PrometheusCollector struct {
	reqCount    *prometheus.CounterVec
	reqDurHist  *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	registry    *prometheus.Registry
	MetricsPath string
}

// NewPrometheusCollector registers the standard HTTP metrics, prefixed with namespace, on a
// private registry that also carries the Go and process collectors.
func NewPrometheusCollector(namespace, metricsPath string) *PrometheusCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pc := &PrometheusCollector{
		reqCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		reqDurHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight requests",
		}),
		registry:    reg,
		MetricsPath: metricsPath,
	}
	reg.MustRegister(pc.reqCount, pc.reqDurHist, pc.inFlight)
	return pc
}

// Registry exposes the collector's registry so callers can add their own metrics.
func (pc *PrometheusCollector) Registry() *prometheus.Registry { return pc.registry }

// PrometheusMiddleware records every request except scrapes of the metrics endpoint.
func (pc *PrometheusCollector) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == pc.MetricsPath {
			c.Next()
			return
		}
		start := time.Now()
		pc.inFlight.Inc()
		defer pc.inFlight.Dec()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		pc.reqCount.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		pc.reqDurHist.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// RegisterMetricsEndpoint serves the registry on MetricsPath.
func (pc *PrometheusCollector) RegisterMetricsEndpoint(engine *gin.Engine) {
	if pc.MetricsPath == "" {
		pc.MetricsPath = "/metrics"
	}
	engine.GET(pc.MetricsPath, gin.WrapH(promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{Registry: pc.registry})))
}
