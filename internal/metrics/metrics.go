package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aqmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// UpstreamRequests counts provider queries by kind ("bounds", "feed") and outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqmap",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total air-quality provider queries",
	}, []string{"query", "outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aqmap",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Air-quality provider query latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"query"})

	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aqmap",
		Subsystem: "widget",
		Name:      "pending_requests",
		Help:      "Provider queries dispatched by mounted widgets and not yet settled",
	})

	MountedWidgets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aqmap",
		Subsystem: "widget",
		Name:      "mounted",
		Help:      "Currently mounted map widgets",
	})

	MarkersAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aqmap",
		Subsystem: "widget",
		Name:      "markers_added_total",
		Help:      "City markers added to map views, by color category",
	}, []string{"category"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aqmap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}
