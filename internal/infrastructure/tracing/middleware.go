package tracing

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware traces each request and echoes the trace headers. A
// WebSocket upgrade is traced as one request covering the connection's
// lifetime.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parent := FromHeaders(c.Request.Header)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		span, ctx := tracer.StartSpan(WithTrace(c.Request.Context(), traceID, parent), "HTTP "+c.Request.Method+" "+route)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		span.Finish()
		tracer.Submit(span)
	}
}
