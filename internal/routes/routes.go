package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/hbl306/phongtro57-chat/internal/handlers"
	"github.com/hbl306/phongtro57-chat/internal/logger"
	"github.com/hbl306/phongtro57-chat/internal/middleware"
	"github.com/hbl306/phongtro57-chat/internal/services"
	"github.com/hbl306/phongtro57-chat/ws"
)

// RegisterRoutes mounts the snapshot API and the websocket endpoint.
func RegisterRoutes(
	ginRouter *gin.Engine,
	identity *services.IdentityService,
	chatHandler *handlers.ChatHandler,
	wsHandler *ws.Handler,
) {
	api := ginRouter.Group("/api/v1")
	api.Use(middleware.Auth(identity))
	{
		chatHandler.RegisterRoutes(api)
	}

	// The websocket handshake authenticates itself (query token), so no
	// middleware here.
	ginRouter.GET("/ws/chat", wsHandler.ServeWS)

	logger.Info("routes registered")
}
