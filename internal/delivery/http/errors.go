package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/delivery/http/middleware"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

// errorResponder writes the last error a middleware recorded when the chain
// was aborted without a response.
func errorResponder(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		writeError(c, c.Errors.Last().Err, logger)
	}
}

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, err error, logger *zap.Logger) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
	case errors.Is(err, domain.ErrInputTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMissingOwner), errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrEnqueueFailed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	case errors.Is(err, domain.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logger.Error("Request failed", zap.Error(err), zap.String("request_id", middleware.RequestIDFrom(c)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
