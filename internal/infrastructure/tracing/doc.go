/*
Package tracing provides lightweight request tracing.

Inbound API requests get a span through HTTPMiddleware; the trace context is
stored in the request context and forwarded to the job backend and chat
storage by Inject, so one trace id follows a send from the API call to the
remote job submission. Finished spans are written to the zap logger by a
background collector.

# Usage

	tracer := tracing.New("chatsync", logger.Logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "jobs.submit")
	defer tracer.Finish(span)
*/
package tracing
