package catalog

import "github.com/gin-gonic/gin"

func SetupShowRoutes(router *gin.RouterGroup, controller Controller) {
	shows := router.Group("/shows")
	{
		shows.GET("", controller.ListShows)   // GET /api/v1/shows - upcoming screenings, ?cinema_id= narrows to one cinema
		shows.GET("/:id", controller.GetShow) // GET /api/v1/shows/:id - show detail (cached)
	}

	router.GET("/cinemas/:id/shows", controller.ListCinemaShows) // GET /api/v1/cinemas/:id/shows
}
