package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cooktodor/notifier/pkg/errors"
	"github.com/cooktodor/notifier/pkg/logger"
	"github.com/cooktodor/notifier/pkg/response"
)

// RateLimit caps requests per caller and route within a fixed window. Callers
// are identified by user id once authenticated, otherwise by client IP.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		count, ttl, err := store.Increment(c.Request.Context(), rateKey(c), window)
		if err != nil {
			// Fail open.
			logger.WithModule("ratelimit").Warn("rate store increment failed", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > maxRequests {
			response.Abort(c, errors.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

func rateKey(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	if userID := c.GetString(CtxUserIDKey); userID != "" {
		return "user:" + userID + "|" + path
	}
	return "ip:" + c.ClientIP() + "|" + path
}
