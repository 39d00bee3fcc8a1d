package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit returns a middleware that limits the maximum request body size.
// Bodies that announce a larger Content-Length are rejected with 413 up front;
// others are cut off by http.MaxBytesReader while being read.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
