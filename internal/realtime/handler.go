package realtime

import (
	"context"
	"net/http"
	"slices"

	"seatlock/internal/broadcast"
	"seatlock/internal/catalog"
	"seatlock/internal/leases"
	"seatlock/internal/shared/config"
	"seatlock/internal/shared/middleware"
	"seatlock/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ShowLookup resolves a show and its grid
type ShowLookup interface {
	GetShow(ctx context.Context, id uuid.UUID) (*catalog.Show, error)
}

// Handler upgrades HTTP requests into seat-map sessions
type Handler struct {
	manager  *leases.Manager
	hub      *broadcast.Hub
	shows    ShowLookup
	cfg      config.RealtimeConfig
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewHandler(manager *leases.Manager, hub *broadcast.Hub, shows ShowLookup, cfg config.RealtimeConfig) *Handler {
	h := &Handler{
		manager:  manager,
		hub:      hub,
		shows:    shows,
		cfg:      cfg,
		validate: validator.New(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeWS handles GET /ws
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written an HTTP error
		logger.GetDefault().Warn("websocket upgrade failed", "error", err, "ip", c.ClientIP())
		return
	}

	userID, _ := middleware.GetUserID(c)
	s := newSession(h, conn, userID)
	logger.GetDefault().LogSessionOpened(c.Request.Context(), s.id, c.ClientIP())
	s.run()
}
