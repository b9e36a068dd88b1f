// logger.go provides Gin middleware that writes one structured log line per request
// with method, route, status, duration, and correlation id, plus panic recovery that
// converts unexpected failures into a generic 500 envelope. Internal error details
// never reach the response body; they go to the server log with the request id so
// operators can correlate a client's report with the stack trace.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medtrack/inventory-backend/internal/api/apierror"
)

// RequestLogMiddleware logs every completed request.
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		requestID, _ := c.Get(RequestIDKey)
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
			"client_ip", c.ClientIP(),
		}

		switch {
		case c.Writer.Status() >= 500:
			slog.Error("request failed", attrs...)
		case c.Writer.Status() >= 400:
			slog.Warn("request rejected", attrs...)
		default:
			slog.Info("request completed", attrs...)
		}
	}
}

// RecoveryMiddleware converts panics into the generic 500 envelope. The panic
// value and stack are logged server-side only.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID, _ := c.Get(RequestIDKey)
				slog.Error("panic recovered in handler",
					"panic", r,
					"request_id", requestID,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				apierror.Abort(c, http.StatusInternalServerError, apierror.CodeInternal,
					"An internal error occurred")
			}
		}()

		c.Next()
	}
}
