package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"seatlock/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller interface {
	GetShow(c *gin.Context)
	ListShows(c *gin.Context)
	ListCinemaShows(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

func (ctrl *controller) GetShow(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid show ID", nil, err.Error())
		return
	}

	show, err := ctrl.service.GetShowDetail(c.Request.Context(), showID)
	if err != nil {
		if errors.Is(err, ErrShowNotFound) {
			response.RespondJSON(c, "error", http.StatusNotFound, err.Error(), nil, nil)
			return
		}
		response.RespondJSON(c, "error", http.StatusInternalServerError, "Failed to load show", nil, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Show retrieved successfully", show, nil)
}

// ListShows handles GET /api/v1/shows?cinema_id=&limit=20&offset=0
func (ctrl *controller) ListShows(c *gin.Context) {
	cinemaID := uuid.Nil
	if raw := c.Query("cinema_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid cinema ID", nil, err.Error())
			return
		}
		cinemaID = id
	}
	ctrl.listShows(c, cinemaID)
}

// ListCinemaShows handles GET /api/v1/cinemas/:id/shows
func (ctrl *controller) ListCinemaShows(c *gin.Context) {
	cinemaID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid cinema ID", nil, err.Error())
		return
	}
	ctrl.listShows(c, cinemaID)
}

func (ctrl *controller) listShows(c *gin.Context, cinemaID uuid.UUID) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	shows, err := ctrl.service.ListUpcomingShows(c.Request.Context(), cinemaID, limit, offset)
	if err != nil {
		response.RespondJSON(c, "error", http.StatusInternalServerError, "Failed to list shows", nil, nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Shows retrieved successfully", shows, nil)
}
