package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
)

const rateWindow = time.Minute

// RateLimiter enforces a fixed one-minute window of maxRequests per owner,
// falling back to the client IP before the owner is known. Counters live in
// the shared store so every API instance enforces the same budget. When the
// store is unreachable requests are let through.
func RateLimiter(counter repository.RateCounter, maxRequests int, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxRequests <= 0 {
			c.Next()
			return
		}

		key := OwnerID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		count, err := counter.Incr(c.Request.Context(), key, rateWindow)
		if err != nil {
			logger.Warn("Rate limit counter unavailable", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		if count > int64(maxRequests) {
			c.Header("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
			abort(c, fmt.Errorf("%w (maximum %d requests per minute)", domain.ErrRateLimitExceeded, maxRequests))
			return
		}
		c.Next()
	}
}
