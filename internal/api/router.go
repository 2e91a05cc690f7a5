package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/feedsync/internal/app/syncer"
	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/handlers"
	"github.com/charlesng35/feedsync/internal/middleware"
	"github.com/charlesng35/feedsync/internal/monitoring"
	"github.com/charlesng35/feedsync/internal/realtime"
	"github.com/charlesng35/feedsync/internal/state"
)

// NewRouter builds the Gin engine, wires middleware and registers the agent's
// loopback API. The sync scheduler and realtime hub are optional; their routes
// degrade gracefully when absent.
func NewRouter(container *state.Container, checker connectivity.Checker, hub *realtime.Hub, sync *syncer.Syncer, health *monitoring.HealthManager) (*gin.Engine, error) {
	if container == nil {
		return nil, fmt.Errorf("state container must be provided")
	}
	if checker == nil {
		return nil, fmt.Errorf("connectivity checker must be provided")
	}
	if health == nil {
		return nil, fmt.Errorf("health manager must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthEndpoints(r, health)
	registerHealthEndpoints(r.Group("/api"), health)

	authHandler := handlers.NewAuthHandler(container)
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/session", authHandler.Session)
	}

	feedHandler := handlers.NewFeedHandler(container)
	feed := r.Group("/api/feed")
	{
		feed.GET("", feedHandler.Feed)
		feed.POST("/refresh", feedHandler.Refresh)
		feed.POST("/more", feedHandler.More)
		feed.GET("/search", feedHandler.Search)
	}

	posts := r.Group("/api/posts")
	{
		posts.POST("", feedHandler.Create)
		posts.DELETE("/:id", feedHandler.Delete)
	}

	realtimeHandler := handlers.NewRealtimeHandler(hub)
	r.GET("/api/events", realtimeHandler.Stream)

	statusHandler := handlers.NewStatusHandler(checker, container, sync)
	r.GET("/api/status", statusHandler.Status)
	r.POST("/api/sync", statusHandler.Sync)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
