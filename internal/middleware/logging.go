package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fusioneventsak/Songrequest-DEVServer/pkg/logger"
)

// Logging logs one structured line per request.
func Logging(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []logger.Field{
			logger.F("method", c.Request.Method),
			logger.F("path", path),
			logger.F("status", c.Writer.Status()),
			logger.F("duration_ms", time.Since(start).Milliseconds()),
			logger.F("request_id", GetRequestID(c)),
			logger.F("client_ip", c.ClientIP()),
		}

		if c.Writer.Status() >= 500 {
			log.Error("request failed", fields...)
		} else {
			log.Info("request", fields...)
		}
	}
}
