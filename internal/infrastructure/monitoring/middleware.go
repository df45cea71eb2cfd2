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

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a protocol call
type Timer struct {
	start   time.Time
	metrics *Metrics
	method  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, method string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		method:  method,
	}
}

// Stop records the call. kind is the error kind, or empty on success.
func (t *Timer) Stop(kind string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordCall(t.method, kind, duration)
	return duration
}
