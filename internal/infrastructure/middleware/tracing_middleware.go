package middleware

import (
	"time"

	"sendctl/pkg/errors"
	"sendctl/pkg/logger"
	"sendctl/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TracingMiddleware adds tracing to HTTP requests. Engine call spans started
// by handlers become children of the request span, and the trace and sender
// ids are put in the request context for logging.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.TraceHTTPRequest(c.Request.Context(), c.Request.Method, c.FullPath())
		defer span.End()

		span.SetAttributes(
			attribute.String("http.host", c.Request.Host),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("http.remote_addr", c.ClientIP()),
		)
		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = logger.WithTraceID(ctx, sc.TraceID().String())
		}
		if id := c.Param("id"); id != "" {
			span.SetAttributes(tracing.SenderIDKey.String(id))
			ctx = logger.WithSenderID(ctx, id)
		}

		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		span.SetAttributes(
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.response_size", int64(c.Writer.Size())),
			attribute.Int64("http.duration_ms", duration.Milliseconds()),
		)

		if len(c.Errors) > 0 {
			if appErr := errors.GetAppError(c.Errors.Last().Err); appErr != nil {
				span.SetAttributes(attribute.String("error.code", string(appErr.Code)))
				if appErr.Code == errors.ErrCodeNativeCall {
					span.SetAttributes(tracing.NativeStatusKey.Int(int(appErr.NativeStatus)))
				}
			}
		}

		if c.Writer.Status() >= 400 {
			span.SetStatus(codes.Error, c.Errors.String())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}
