package bookings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"seatlock/internal/shared/config"
	"seatlock/internal/shared/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
}

type apiClient struct {
	t      *testing.T
	router *gin.Engine
	secret string
}

func newAPIClient(t *testing.T, h *harness) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := gin.New()
	SetupBookingRoutes(r.Group("/api/v1"), NewController(h.svc), cfg)
	return &apiClient{t: t, router: r, secret: cfg.JWT.Secret}
}

func (a *apiClient) do(method, path, userID, role string, body interface{}) (int, apiEnvelope) {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.IssueAccessToken(a.secret, userID, role, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env apiEnvelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestCreateBookingEndpoint(t *testing.T) {
	h := newHarness(t)
	api := newAPIClient(t, h)

	body := gin.H{
		"show_id": h.show.ID.String(),
		"seats":   []gin.H{{"row": 0, "column": 1}, {"row": 0, "column": 2}},
	}

	code, env := api.do(http.MethodPost, "/api/v1/bookings", "", "", body)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = api.do(http.MethodPost, "/api/v1/bookings", "user-1", middleware.RoleUser, body)
	require.Equal(t, http.StatusCreated, code)
	var created BookingResponse
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, StatusConfirmed, created.Status)
	assert.Equal(t, 25.0, created.TotalAmount)

	code, env = api.do(http.MethodPost, "/api/v1/bookings", "user-2", middleware.RoleUser, gin.H{
		"show_id": h.show.ID.String(),
		"seats":   []gin.H{{"row": 0, "column": 2}, {"row": 0, "column": 3}},
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.JSONEq(t, `{"conflicts":[{"row":0,"column":2}]}`, string(env.Errors))

	code, _ = api.do(http.MethodPost, "/api/v1/bookings", "user-2", middleware.RoleUser, gin.H{
		"show_id": h.show.ID.String(),
		"seats":   []gin.H{},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(http.MethodPost, "/api/v1/bookings", "user-2", middleware.RoleUser, gin.H{
		"show_id": uuid.NewString(),
		"seats":   []gin.H{{"row": 0, "column": 0}},
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateBookingRejectsIncompleteSeats(t *testing.T) {
	h := newHarness(t)
	api := newAPIClient(t, h)

	tests := []struct {
		name  string
		seats []gin.H
		field string
	}{
		{name: "empty seat object", seats: []gin.H{{}}, field: "seats[0].row"},
		{name: "row without column", seats: []gin.H{{"row": 3}}, field: "seats[0].column"},
		{name: "second seat incomplete", seats: []gin.H{{"row": 1, "column": 1}, {"column": 2}}, field: "seats[1].row"},
		{name: "negative row", seats: []gin.H{{"row": -1, "column": 0}}, field: "seats[0].row"},
		{name: "too many seats", seats: []gin.H{
			{"row": 0, "column": 0}, {"row": 0, "column": 1}, {"row": 0, "column": 2}, {"row": 0, "column": 3},
			{"row": 0, "column": 4}, {"row": 0, "column": 5}, {"row": 0, "column": 6},
		}, field: "seats"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := api.do(http.MethodPost, "/api/v1/bookings", "user-1", middleware.RoleUser, gin.H{
				"show_id": h.show.ID.String(),
				"seats":   tt.seats,
			})
			require.Equal(t, http.StatusBadRequest, code)

			var detail struct {
				Field string `json:"field"`
			}
			require.NoError(t, json.Unmarshal(env.Errors, &detail))
			assert.Equal(t, tt.field, detail.Field)
		})
	}

	assert.Zero(t, h.repo.confirmedCount())
	assert.Equal(t, 100, h.repo.available(h.show.ID))
}

func TestBookingReadAndCancelEndpoints(t *testing.T) {
	h := newHarness(t)
	api := newAPIClient(t, h)
	created := h.book(t, "user-1", seat(1, 1))

	code, _ := api.do(http.MethodGet, "/api/v1/bookings/"+created.ID, "user-2", middleware.RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env := api.do(http.MethodGet, "/api/v1/bookings", "user-1", middleware.RoleUser, nil)
	require.Equal(t, http.StatusOK, code)
	var page PaginatedBookings
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 1, page.Total)

	code, env = api.do(http.MethodPut, "/api/v1/bookings/"+created.ID+"/cancel", "user-1", middleware.RoleUser, nil)
	require.Equal(t, http.StatusOK, code)
	var cancelled BookingResponse
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, StatusCancelled, cancelled.Status)

	code, _ = api.do(http.MethodPut, "/api/v1/bookings/"+created.ID+"/cancel", "user-1", middleware.RoleUser, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = api.do(http.MethodPut, "/api/v1/bookings/not-a-uuid/cancel", "user-1", middleware.RoleUser, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAdminShowEndpoints(t *testing.T) {
	h := newHarness(t)
	api := newAPIClient(t, h)
	showPath := "/api/v1/admin/shows/" + h.show.ID.String()

	code, _ := api.do(http.MethodPut, showPath+"/grid", "user-1", middleware.RoleUser, gin.H{"rows": 8, "columns": 8})
	assert.Equal(t, http.StatusForbidden, code)

	code, env := api.do(http.MethodPut, showPath+"/grid", "admin-1", middleware.RoleAdmin, gin.H{"rows": 8, "columns": 8})
	require.Equal(t, http.StatusOK, code)
	var m SeatMapResponse
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 64, m.AvailableSeats)

	code, env = api.do(http.MethodGet, "/api/v1/shows/"+h.show.ID.String()+"/seats", "", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, 8, m.Rows)

	booked := h.book(t, "user-1", seat(0, 0))

	code, _ = api.do(http.MethodGet, showPath+"/seats", "user-1", middleware.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = api.do(http.MethodGet, showPath+"/seats", "admin-1", middleware.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var owners SeatBookingsResponse
	require.NoError(t, json.Unmarshal(env.Data, &owners))
	require.Contains(t, owners.SeatMap, "0-0")
	assert.Equal(t, booked.BookingNumber, owners.SeatMap["0-0"].BookingNumber)
	assert.Equal(t, "user-1", owners.SeatMap["0-0"].UserID)

	code, _ = api.do(http.MethodDelete, showPath, "admin-1", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, code)
}
