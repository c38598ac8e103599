package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests that hit no registered route so scanners
// cannot grow the path label set.
const unmatchedRoute = "unmatched"

var (
	httpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
		[]string{"method", "route", "status_class"},
	)

	httpResponseBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobgate",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Response body size by route template.",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8),
		},
		[]string{"method", "route"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobgate",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "HTTP requests currently being served.",
		},
	)
)

// GinMiddleware observes latency and response size per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpInFlight.Inc()
		start := time.Now()

		// Panics are observed as 500 and re-raised for gin.Recovery.
		defer func() {
			httpInFlight.Dec()
			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			method := c.Request.Method
			status := c.Writer.Status()
			if r := recover(); r != nil {
				status = http.StatusInternalServerError
				defer panic(r)
			}
			httpLatency.WithLabelValues(method, route, statusClass(status)).Observe(time.Since(start).Seconds())
			if size := c.Writer.Size(); size > 0 {
				httpResponseBytes.WithLabelValues(method, route).Observe(float64(size))
			}
		}()

		c.Next()
	}
}

// statusClass folds a status code into 2xx, 4xx and so on.
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
