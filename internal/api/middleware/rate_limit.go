package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"chat-sync/pkg/logger"
	"chat-sync/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter reports whether another request under key is allowed.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
	log     *logger.Logger
}

// NewRateLimitMiddleware returns a middleware factory. A nil limiter disables limiting.
func NewRateLimitMiddleware(limiter RateLimiter, log *logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		log:     log,
	}
}

// RateLimit limits per caller and route. The caller is the token subject when
// authenticated, the client IP otherwise.
func (rm *RateLimitMiddleware) RateLimit(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rm.limiter == nil || requests <= 0 {
			c.Next()
			return
		}

		caller := c.GetString(ExternalIDKey)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		key := fmt.Sprintf("rate_limit:%s:%s", caller, c.FullPath())

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			// Fail open when the limiter backend is down.
			rm.log.Warn("Rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			response.Abort(c, http.StatusTooManyRequests,
				fmt.Sprintf("Too many requests. Limit: %d per %v", requests, window))
			return
		}

		c.Next()
	}
}
