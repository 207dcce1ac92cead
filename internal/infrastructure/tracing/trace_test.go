package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, root.TraceID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
}

func TestInjectExtractRoundTrip(t *testing.T) {
	tracer := New("test", zap.NewNop())
	defer tracer.Close()

	span, ctx := tracer.StartSpan(context.Background(), "op")

	header := http.Header{}
	Inject(ctx, header)
	assert.Equal(t, string(span.TraceID), header.Get(HeaderTraceID))

	extracted := Extract(context.Background(), header)
	assert.Equal(t, span.TraceID, GetTraceID(extracted))
	assert.Equal(t, span.SpanID, GetSpanID(extracted))
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))

	var seen TraceID
	router.GET("/view", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/view", nil)
	req.Header.Set(HeaderTraceID, "trace-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TraceID("trace-123"), seen)
	assert.Equal(t, "trace-123", w.Header().Get(HeaderTraceID))

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("span completed").Len() == 1
	}, time.Second, 10*time.Millisecond)
}
