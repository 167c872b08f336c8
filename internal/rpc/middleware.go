package rpc

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixge/httpsnoop"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsMiddleware records a request counter and a duration histogram per
// procedure and status.
func MetricsMiddleware() gin.HandlerFunc {
	meter := otel.Meter("todo-rpc")

	requestCounter, _ := meter.Int64Counter(
		"rpc_requests_total",
		metric.WithDescription("Total number of procedure calls"),
	)

	requestDuration, _ := meter.Float64Histogram(
		"rpc_request_duration_seconds",
		metric.WithDescription("Procedure call duration in seconds"),
		metric.WithUnit("s"),
	)

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()

		proc := c.GetString(procedureKey)
		if proc == "" {
			proc = "unknown"
		}
		attrs := []attribute.KeyValue{
			attribute.String("procedure", proc),
			attribute.String("method", c.Request.Method),
			attribute.Int("status_code", c.Writer.Status()),
		}

		requestCounter.Add(c.Request.Context(), 1, metric.WithAttributes(attrs...))
		requestDuration.Record(c.Request.Context(), duration, metric.WithAttributes(attrs...))
	}
}

// AccessLog logs one line per request handled by h.
func AccessLog(logger *log.Logger, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(h, w, r)
		logger.Info("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}
