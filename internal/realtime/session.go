package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"seatlock/internal/broadcast"
	"seatlock/internal/catalog"
	"seatlock/internal/leases"
	"seatlock/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultSendBuffer = 64

// Session is one websocket connection. Its id is the holder of every lease
// it takes, so closing the session releases them all.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn
	h      *Handler

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]*broadcast.Subscription
}

func newSession(h *Handler, conn *websocket.Conn, userID string) *Session {
	buffer := h.cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Session{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		h:      h,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		subs:   make(map[string]*broadcast.Subscription),
	}
}

func (s *Session) ID() string {
	return s.id
}

// run blocks until the connection ends, then releases everything the session held
func (s *Session) run() {
	go s.writePump()
	s.enqueue(leases.NewEvent(leases.EventWelcome, "", WelcomePayload{
		SessionID:    s.id,
		LeaseSeconds: int(s.h.manager.TTL() / time.Second),
	}))

	s.readPump()

	s.close()
	s.mu.Lock()
	for showID, sub := range s.subs {
		s.h.hub.Unsubscribe(sub)
		delete(s.subs, showID)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	released, err := s.h.manager.ReleaseAll(ctx, s.id)
	if err != nil {
		logger.GetDefault().Error("failed to release session leases", "session_id", s.id, "error", err)
	}
	logger.GetDefault().LogSessionClosed(ctx, s.id, released)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *Session) readPump() {
	cfg := s.h.cfg
	if cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(cfg.MaxMessageBytes)
	}
	if cfg.PongWait > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.GetDefault().Debug("websocket read ended", "session_id", s.id, "error", err)
			}
			return
		}
		if cfg.PongWait > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		}
		s.handle(context.Background(), data)
	}
}

func (s *Session) writePump() {
	cfg := s.h.cfg
	var tick <-chan time.Time
	if cfg.PingPeriod > 0 {
		ticker := time.NewTicker(cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case msg := <-s.send:
			s.setWriteDeadline()
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.close()
				return
			}
		case <-tick:
			s.setWriteDeadline()
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) setWriteDeadline() {
	if s.h.cfg.WriteWait > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteWait))
	}
}

// enqueue queues ev for the writer. A client that stops reading is disconnected.
func (s *Session) enqueue(ev leases.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.GetDefault().Error("failed to encode event", "type", string(ev.Type), "error", err)
		return
	}

	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- data:
	case <-s.done:
	default:
		logger.GetDefault().Warn("session send buffer full, closing", "session_id", s.id)
		s.close()
	}
}

func (s *Session) sendError(showID, message string) {
	s.enqueue(leases.NewEvent(leases.EventError, showID, ErrorPayload{Message: message}))
}

// forward copies a show's events to the client until the subscription ends
func (s *Session) forward(sub *broadcast.Subscription) {
	for ev := range sub.Events() {
		s.enqueue(ev)
	}
	if s.h.hub.Dropped(sub) {
		// the client's view is now stale; it must reconnect and re-join
		logger.GetDefault().Warn("session fell behind show events, closing", "session_id", s.id, "show_id", sub.ShowID())
		s.close()
	}
}

func (s *Session) handle(ctx context.Context, data []byte) {
	var msg ClientMessage
	if err := decode(s.h.validate, data, &msg); err != nil {
		s.sendError("", err.Error())
		return
	}

	switch msg.Type {
	case MessageJoin:
		var req ShowRequest
		if err := decode(s.h.validate, msg.Data, &req); err != nil {
			s.sendError("", err.Error())
			return
		}
		s.join(ctx, req.ShowID)

	case MessageLeave:
		var req ShowRequest
		if err := decode(s.h.validate, msg.Data, &req); err != nil {
			s.sendError("", err.Error())
			return
		}
		s.leave(req.ShowID)

	case MessageAcquire, MessageRelease:
		var req SeatRequest
		if err := decode(s.h.validate, msg.Data, &req); err != nil {
			s.sendError("", err.Error())
			return
		}
		show, err := s.lookupShow(ctx, req.ShowID)
		if err != nil {
			s.sendError(req.ShowID, err.Error())
			return
		}
		seat := req.Seat()
		if !show.Contains(seat) {
			s.sendError(req.ShowID, "seat is outside the show's grid")
			return
		}
		if msg.Type == MessageAcquire {
			s.acquire(ctx, req.ShowID, seat)
		} else if _, err := s.h.manager.Release(ctx, req.ShowID, seat, s.id); err != nil {
			logger.GetDefault().Error("lease release failed", "session_id", s.id, "error", err)
			s.sendError(req.ShowID, "failed to release seat")
		}

	case MessageReleaseAll:
		var req ShowRequest
		if err := decode(s.h.validate, msg.Data, &req); err != nil {
			s.sendError("", err.Error())
			return
		}
		if _, err := s.h.manager.ReleaseShow(ctx, req.ShowID, s.id); err != nil {
			logger.GetDefault().Error("lease release-all failed", "session_id", s.id, "error", err)
			s.sendError(req.ShowID, "failed to release seats")
		}
	}
}

// join subscribes before taking the snapshot so no event falls in between
func (s *Session) join(ctx context.Context, showID string) {
	if _, err := s.lookupShow(ctx, showID); err != nil {
		s.sendError(showID, err.Error())
		return
	}

	s.mu.Lock()
	if _, ok := s.subs[showID]; !ok {
		sub := s.h.hub.Subscribe(showID)
		s.subs[showID] = sub
		go s.forward(sub)
	}
	s.mu.Unlock()

	snapshot, err := s.h.manager.Join(ctx, showID)
	if err != nil {
		logger.GetDefault().Error("failed to load lease snapshot", "show_id", showID, "error", err)
		s.sendError(showID, "failed to load seat leases")
		return
	}
	s.enqueue(leases.NewEvent(leases.EventCurrentLeases, showID, leases.SnapshotPayload(snapshot)))
}

func (s *Session) leave(showID string) {
	s.mu.Lock()
	sub, ok := s.subs[showID]
	delete(s.subs, showID)
	s.mu.Unlock()
	if ok {
		s.h.hub.Unsubscribe(sub)
	}
}

func (s *Session) acquire(ctx context.Context, showID string, seat catalog.Seat) {
	_, err := s.h.manager.Acquire(ctx, showID, seat, s.id)
	switch {
	case err == nil:
	case errors.Is(err, leases.ErrLeaseDenied):
		s.enqueue(leases.NewEvent(leases.EventLeaseDenied, showID, leases.SeatPayload{Row: seat.Row, Column: seat.Column}))
	default:
		logger.GetDefault().Error("lease acquire failed", "session_id", s.id, "error", err)
		s.sendError(showID, "failed to lease seat")
	}
}

// lookupShow reads the show fresh each time so grid changes apply immediately
func (s *Session) lookupShow(ctx context.Context, showID string) (*catalog.Show, error) {
	id, err := uuid.Parse(showID)
	if err != nil {
		return nil, errors.New("invalid show id")
	}
	show, err := s.h.shows.GetShow(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrShowNotFound) {
			return nil, catalog.ErrShowNotFound
		}
		logger.GetDefault().Error("show lookup failed", "show_id", showID, "error", err)
		return nil, errors.New("failed to load show")
	}
	return show, nil
}
