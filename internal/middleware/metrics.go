package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cooktodor/notifier/pkg/metrics"
)

// Metrics observes request latency. Long-lived stream responses go to the
// stream duration histogram instead so they do not skew API latency.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start).Seconds()

		if transport := streamTransport(c); transport != "" {
			metrics.StreamDuration.WithLabelValues(transport).Observe(elapsed)
			return
		}

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.APILatency.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(elapsed)
	}
}

func streamTransport(c *gin.Context) string {
	switch {
	case c.Writer.Status() == http.StatusSwitchingProtocols:
		return "websocket"
	case strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream"):
		return "sse"
	default:
		return ""
	}
}
