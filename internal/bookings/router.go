package bookings

import (
	"seatlock/internal/shared/config"
	"seatlock/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupBookingRoutes(router *gin.RouterGroup, controller Controller, cfg *config.Config) {
	bookings := router.Group("/bookings")
	bookings.Use(middleware.JWTAuthWithConfig(cfg))
	{
		bookings.POST("", controller.CreateBooking)           // POST /api/v1/bookings
		bookings.GET("", controller.ListUserBookings)         // GET /api/v1/bookings
		bookings.GET("/:id", controller.GetBooking)           // GET /api/v1/bookings/:id
		bookings.PUT("/:id/cancel", controller.CancelBooking) // PUT /api/v1/bookings/:id/cancel
	}

	// public seat map: confirmed seats plus live leases
	router.GET("/shows/:id/seats", controller.GetSeatMap) // GET /api/v1/shows/:id/seats

	admin := router.Group("/admin/shows")
	admin.Use(middleware.JWTAuthWithConfig(cfg), middleware.RequireAdmin())
	{
		admin.GET("/:id/seats", controller.GetSeatBookings) // GET /api/v1/admin/shows/:id/seats
		admin.DELETE("/:id", controller.DeleteShow)         // DELETE /api/v1/admin/shows/:id
		admin.PUT("/:id/grid", controller.ResizeGrid)       // PUT /api/v1/admin/shows/:id/grid
	}
}
