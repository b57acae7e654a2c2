package realtime

import (
	"seatlock/internal/shared/config"
	"seatlock/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRealtimeRoutes(router *gin.RouterGroup, handler *Handler, cfg *config.Config) {
	// viewers may watch a seat map anonymously
	router.GET("/ws", middleware.OptionalAuthWithConfig(cfg), handler.ServeWS) // GET /api/v1/ws
}
