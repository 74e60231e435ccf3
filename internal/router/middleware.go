package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mombroker/mom/internal/logging"
)

// LoggingMiddleware logs every request's method, path, status, and
// latency through the node's Logger.
func LoggingMiddleware(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// RecoveryMiddleware converts a panicking handler into a 500 response
// instead of killing the node.
func RecoveryMiddleware(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic recovered: %v", r)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
			}
		}()
		c.Next()
	}
}
