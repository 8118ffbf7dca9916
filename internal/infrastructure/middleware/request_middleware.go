package middleware

import (
	"time"

	"workhub/internal/infrastructure/monitoring"
	rlog "workhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware propagates or assigns a request id and seeds the
// request-scoped logger with it.
func RequestIDMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := rlog.WithRequestID(c.Request.Context(), id)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = rlog.WithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(loggerKey, rlog.NewContextLogger(logger).WithContext(ctx))
		c.Next()
	}
}

// RequestLoggerMiddleware logs one line per request and records HTTP
// metrics when a collector is given.
func RequestLoggerMiddleware(logger *zap.SugaredLogger, metrics *monitoring.PrometheusCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if metrics != nil {
			metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)
		}
		LoggerFrom(c, logger).Infow("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route,
			"status_code", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
