/*
Package tracing provides lightweight span tracing.

Spans are created per protocol call and per HTTP request, finished by the
caller and handed to a buffered collector goroutine that logs them through
zap. Nothing is exported to an external backend.

# Usage

	tracer := tracing.New("automation", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "Page.navigate")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

HTTP callers may propagate an existing trace with:
  - X-Trace-ID: identifier for the entire flow
  - X-Span-ID: identifier of the calling operation
*/
package tracing
