package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"rtmpscout/pkg/logger"
	"rtmpscout/pkg/utils"
)

const RequestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware tags every request with an id and logs it once the
// handler chain has finished. A client supplied X-Request-ID is kept.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = utils.GenerateRequestID()
		}
		c.Header(RequestIDHeader, requestID)
		ctx := logger.WithRequest(c.Request.Context(), requestID)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = logger.WithTrace(ctx, sc.TraceID().String())
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		cl.LogRequest(c.Request.Context(), c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
