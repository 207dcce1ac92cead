package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a remote call
type Timer struct {
	start     time.Time
	metrics   *Metrics
	service   string
	operation string
}

// NewTimer starts a timer for a remote operation
func NewTimer(metrics *Metrics, service, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		service:   service,
		operation: operation,
	}
}

// Stop records the duration under the given status
func (t *Timer) Stop(status string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordRemoteCall(t.service, t.operation, status, duration)
	return duration
}

// StopErr records "success" or "error" depending on err
func (t *Timer) StopErr(err error) time.Duration {
	if err != nil {
		return t.Stop("error")
	}
	return t.Stop("success")
}
