package middleware

import (
	"strings"

	"workhub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// TracingMiddleware continues an incoming W3C trace and opens one server
// span per /api request. It must run before RequestIDMiddleware so request
// logs carry the trace id.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}

		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.TraceHTTPRequest(ctx, c.Request.Method, route)
		defer span.End()
		span.SetAttributes(attribute.String("http.client_ip", c.ClientIP()))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if id, ok := CurrentUser(c); ok {
			span.SetAttributes(tracing.UserIDKey.String(string(id)))
		}
		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
