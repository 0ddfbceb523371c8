package api

import (
	"github.com/gin-gonic/gin"

	"github.com/cooktodor/notifier/internal/app"
	iauth "github.com/cooktodor/notifier/internal/auth"
	"github.com/cooktodor/notifier/internal/handlers"
	"github.com/cooktodor/notifier/internal/middleware"
	"github.com/cooktodor/notifier/internal/models"
)

type notificationRoutes struct {
	jwt           *iauth.JWTService
	notifications *handlers.NotificationHandler
	streams       *handlers.StreamHandler
	rateStore     middleware.RateStore
	connectLimit  app.ConnectLimit
	push          bool
	websocket     bool
}

func registerNotificationRoutes(api *gin.RouterGroup, routes notificationRoutes) {
	anyRole := middleware.RequireRole()

	group := api.Group("/notifications")
	group.Use(middleware.Auth(routes.jwt), anyRole)
	{
		group.GET("", routes.notifications.List)
		group.PUT("/read-all", routes.notifications.MarkAllRead)
		group.PUT("/:id/read", routes.notifications.MarkRead)
		group.GET("/stream/status", routes.streams.Status)

		group.POST("", middleware.RequireRole(models.RoleAdmin), routes.notifications.Create)
	}

	if !routes.push {
		return
	}

	// Browsers cannot set headers on EventSource or WebSocket handshakes.
	streams := api.Group("/notifications")
	streams.Use(
		middleware.Auth(routes.jwt, middleware.WithQueryToken("token")),
		anyRole,
		middleware.RateLimit(routes.rateStore, routes.connectLimit.Requests, routes.connectLimit.Window),
	)
	{
		streams.GET("/stream", routes.streams.SSE)
		if routes.websocket {
			streams.GET("/ws", routes.streams.WebSocket)
		}
	}
}
