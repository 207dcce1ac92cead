package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordJobSubmitted("image", "success")
		m.RecordJobFinished("image", "COMPLETED")
		m.IncJobLoops()
		m.DecJobLoops()
		m.RecordSessionUpdate(true)
		m.RecordSessionWrite("success")
		NewTimer(m, "jobs", "poll").StopErr(errors.New("boom"))
	})
}

func TestIndependentRegistries(t *testing.T) {
	// Two collectors must not collide on registration
	m1 := NewMetrics()
	m2 := NewMetrics()

	m1.RecordJobFinished("video", "TIMED_OUT")

	assert.Equal(t, 1.0, testutil.ToFloat64(m1.JobsFinished.WithLabelValues("video", "TIMED_OUT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.JobsFinished.WithLabelValues("video", "TIMED_OUT")))
}

func TestSessionUpdateCoalescing(t *testing.T) {
	m := NewMetrics()

	m.RecordSessionUpdate(false)
	m.RecordSessionUpdate(true)
	m.RecordSessionUpdate(true)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionUpdates))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionCoalesced))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/sessions/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/sessions/:id", "200")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "chatsync_http_requests_total"))
}
