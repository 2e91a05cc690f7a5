package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/feedsync/pkg/logger"
)

// Probe endpoints are polled continuously; logging them would drown the
// agent log.
var quietPaths = map[string]struct{}{
	"/health":       {},
	"/health/live":  {},
	"/health/ready": {},
	"/metrics":      {},
}

// Logger writes a concise structured access log for each request. The agent
// serves loopback only, so no client address is recorded.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		query := c.Request.URL.RawQuery

		c.Next()

		if _, quiet := quietPaths[path]; quiet {
			return
		}

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}

		logger.WithModule("http").Info("request", fields...)
	}
}
