package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/feedsync/internal/monitoring"
)

// registerHealthEndpoints mounts the health probes. The summary endpoint
// reports liveness: an offline agent still serves cached data and must not
// look unhealthy. Readiness (can we sync right now) gets its own endpoint.
func registerHealthEndpoints(router gin.IRouter, manager *monitoring.HealthManager) {
	router.GET("/health", func(c *gin.Context) {
		report := manager.EvaluateLiveness(c.Request.Context())
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"success":   report.Success,
			"status":    report.Status,
			"checkedAt": time.Now().UTC(),
		})
	})

	router.GET("/health/live", func(c *gin.Context) {
		writeHealthReport(c, manager.EvaluateLiveness(c.Request.Context()))
	})

	router.GET("/health/ready", func(c *gin.Context) {
		writeHealthReport(c, manager.EvaluateReadiness(c.Request.Context()))
	})
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":   report.Success,
		"status":    report.Status,
		"checks":    report.Checks,
		"checkedAt": time.Now().UTC(),
	})
}
