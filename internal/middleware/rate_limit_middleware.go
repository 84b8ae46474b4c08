// internal/middleware/rate_limit_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"medlink-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Limiter interface {
	Allow(ctx context.Context, subject, bucket string, maxRequests int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps requests per caller (or per client IP before auth) on the
// routes it guards. Limiter outages let requests through.
func RateLimit(limiter Limiter, logger *zap.Logger, bucket string, maxRequests int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := GetUserID(c)
		if !ok {
			subject = c.ClientIP()
		}

		allowed, remaining, err := limiter.Allow(c.Request.Context(), subject, bucket, maxRequests, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("bucket", bucket), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(maxRequests, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "too many requests", nil)
			return
		}
		c.Next()
	}
}
