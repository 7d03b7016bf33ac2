package middleware

import (
	"time"

	"chat-sync/pkg/logger"

	"github.com/gin-gonic/gin"
)

// LogApi writes one line per request.
func LogApi(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"clientIP", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= 500:
			log.Error("Request failed", kv...)
		case c.Writer.Status() >= 400:
			log.Info("Request rejected", kv...)
		default:
			log.Debug("Request served", kv...)
		}
	}
}
