package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/cooktodor/notifier/internal/app"
	iauth "github.com/cooktodor/notifier/internal/auth"
	"github.com/cooktodor/notifier/internal/handlers"
	"github.com/cooktodor/notifier/internal/middleware"
	"github.com/cooktodor/notifier/internal/monitoring"
	"github.com/cooktodor/notifier/internal/monitoring/checks"
	"github.com/cooktodor/notifier/internal/realtime"
	"github.com/cooktodor/notifier/internal/services"
)

// Dependencies are the long-lived components exposed over HTTP.
type Dependencies struct {
	Registry      *realtime.Registry
	Notifications *services.NotificationService
	// RateStore backs the stream connect limit. Nil disables limiting.
	RateStore middleware.RateStore
	// Health serves the health endpoints. When nil a manager probing the
	// database and the registry is built.
	Health *monitoring.HealthManager
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Registry == nil || deps.Notifications == nil {
		return nil, fmt.Errorf("realtime registry and notification service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager()
		health.RegisterReadiness(checks.Database(db))
		health.RegisterReadiness(checks.Streams(deps.Registry))
	}
	registerHealthRoutes(r, cfg, health)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications)
	if err != nil {
		return nil, err
	}

	streamOpts := []handlers.StreamOption{
		handlers.WithWriteTimeout(cfg.Realtime.WriteTimeout),
		handlers.WithAllowedOrigins(cfg.Realtime.WebSocket.AllowedOrigins),
	}
	streamHandler, err := handlers.NewStreamHandler(deps.Registry, deps.Notifications, streamOpts...)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	registerNotificationRoutes(api, notificationRoutes{
		jwt:           jwt,
		notifications: notificationHandler,
		streams:       streamHandler,
		rateStore:     deps.RateStore,
		connectLimit:  cfg.Realtime.ConnectLimit,
		push:          cfg.Features.Notifications.Enabled,
		websocket:     cfg.Realtime.WebSocket.Enabled,
	})

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
