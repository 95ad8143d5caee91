package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type httpMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// HTTPMetricsMiddleware instruments the operational server with request
// counts and latency, labeled by method, route pattern, and status code.
// Route patterns (e.g. /v1/sys/unseal) keep label cardinality bounded.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	meter := meterProvider.Meter(namespace)

	requests, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return passthrough
	}

	latency, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return passthrough
	}

	instruments := &httpMetrics{requests: requests, latency: latency}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("path", routeLabel(c.FullPath())),
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		)
		instruments.requests.Add(c.Request.Context(), 1, attrs)
		instruments.latency.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}
}

// passthrough is the fallback when instrument creation fails; requests are
// served uninstrumented rather than rejected.
func passthrough(c *gin.Context) {
	c.Next()
}

// routeLabel maps unmatched routes to a single label value.
func routeLabel(fullPath string) string {
	if fullPath == "" {
		return "unknown"
	}
	return fullPath
}
