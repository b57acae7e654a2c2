package bookings

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"seatlock/internal/catalog"
	"seatlock/internal/shared/middleware"
	"seatlock/internal/shared/utils/response"
	"seatlock/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Controller interface {
	CreateBooking(c *gin.Context)
	GetBooking(c *gin.Context)
	ListUserBookings(c *gin.Context)
	CancelBooking(c *gin.Context)
	GetSeatMap(c *gin.Context)
	GetSeatBookings(c *gin.Context)
	DeleteShow(c *gin.Context)
	ResizeGrid(c *gin.Context)
}

type controller struct {
	service Service
}

func NewController(service Service) Controller {
	return &controller{service: service}
}

// CreateBooking handles POST /api/v1/bookings
func (ctrl *controller) CreateBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindingError(err), "Invalid request body")
		return
	}

	booking, err := ctrl.service.CreateBooking(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, "Failed to create booking")
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Booking confirmed successfully", booking, nil)
}

// GetBooking handles GET /api/v1/bookings/:id
func (ctrl *controller) GetBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid booking ID", nil, err.Error())
		return
	}

	booking, err := ctrl.service.GetBooking(c.Request.Context(), bookingID, userID)
	if err != nil {
		respondError(c, err, "Failed to load booking")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Booking retrieved successfully", booking, nil)
}

// ListUserBookings handles GET /api/v1/bookings?limit=10&offset=0
func (ctrl *controller) ListUserBookings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := ctrl.service.ListUserBookings(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err, "Failed to list bookings")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Bookings retrieved successfully", bookings, nil)
}

// CancelBooking handles PUT /api/v1/bookings/:id/cancel
func (ctrl *controller) CancelBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid booking ID", nil, err.Error())
		return
	}

	booking, err := ctrl.service.CancelBooking(c.Request.Context(), bookingID, userID)
	if err != nil {
		respondError(c, err, "Failed to cancel booking")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Booking cancelled successfully", booking, nil)
}

// GetSeatMap handles GET /api/v1/shows/:id/seats
func (ctrl *controller) GetSeatMap(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid show ID", nil, err.Error())
		return
	}

	seatMap, err := ctrl.service.GetSeatMap(c.Request.Context(), showID)
	if err != nil {
		respondError(c, err, "Failed to load seat map")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Seat map retrieved successfully", seatMap, nil)
}

// GetSeatBookings handles GET /api/v1/admin/shows/:id/seats
func (ctrl *controller) GetSeatBookings(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid show ID", nil, err.Error())
		return
	}

	seats, err := ctrl.service.GetSeatBookings(c.Request.Context(), showID)
	if err != nil {
		respondError(c, err, "Failed to load seat bookings")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Seat bookings retrieved successfully", seats, nil)
}

// DeleteShow handles DELETE /api/v1/admin/shows/:id
func (ctrl *controller) DeleteShow(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid show ID", nil, err.Error())
		return
	}

	if err := ctrl.service.DeleteShow(c.Request.Context(), showID); err != nil {
		respondError(c, err, "Failed to delete show")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Show deleted successfully", nil, nil)
}

// ResizeGrid handles PUT /api/v1/admin/shows/:id/grid
func (ctrl *controller) ResizeGrid(c *gin.Context) {
	showID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid show ID", nil, err.Error())
		return
	}

	var req ResizeGridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindingError(err), "Invalid request body")
		return
	}

	seatMap, err := ctrl.service.ResizeGrid(c.Request.Context(), showID, req.Rows, req.Columns)
	if err != nil {
		respondError(c, err, "Failed to resize grid")
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Grid resized successfully", seatMap, nil)
}

// respondError maps coordinator errors onto HTTP statuses
func respondError(c *gin.Context, err error, fallback string) {
	var (
		validation *ValidationError
		conflict   *ConflictError
		state      *StateError
	)

	switch {
	case errors.As(err, &validation):
		response.RespondJSON(c, "error", http.StatusBadRequest, validation.Error(), nil, gin.H{
			"field":  validation.Field,
			"reason": validation.Reason,
		})
	case errors.As(err, &conflict):
		response.RespondJSON(c, "error", http.StatusConflict, "Some seats are already booked", nil, gin.H{
			"conflicts": conflict.Conflicts,
		})
	case errors.As(err, &state):
		response.RespondJSON(c, "error", http.StatusConflict, state.Reason, nil, nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrShowNotFound):
		response.RespondJSON(c, "error", http.StatusNotFound, err.Error(), nil, nil)
	default:
		log := logger.GetDefault()
		if userID, ok := middleware.GetUserID(c); ok {
			log = log.WithUserID(userID)
		}
		log.LogHTTPError(c, err, http.StatusInternalServerError)
		response.RespondJSON(c, "error", http.StatusInternalServerError, fallback, nil, nil)
	}
}

// bindingError reports the first failed rule of a request body, e.g. seats[1].column
func bindingError(err error) *ValidationError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &ValidationError{Field: strings.ToLower(field), Reason: "failed " + fe.Tag()}
}
