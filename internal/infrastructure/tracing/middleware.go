package tracing

import (
	"github.com/gin-gonic/gin"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := Extract(c.Request.Context(), c.Request.Header)

		span, ctx := tracer.StartSpan(ctx, c.FullPath())
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}
		tracer.Finish(span)
	}
}
