package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/contact-harvester/internal/progress"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// liveSessions handles GET /v1/sessions/live[?session_id=]. It upgrades to a
// websocket and streams progress events as JSON until either side closes.
// Clients only receive events emitted after they connect.
func (s *Server) liveSessions(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}
	filter := r.URL.Query().Get("session_id")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	events, cancel := s.feed.Subscribe()
	defer cancel()
	logger := s.logger.With(zap.String("request_id", RequestID(r.Context())))
	logger.Info("live client connected", zap.String("session_filter", filter))

	closed := make(chan struct{})
	go s.drainClient(ws, closed)

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			logger.Info("live client disconnected")
			return
		case evt, ok := <-events:
			if !ok {
				s.closeLive(ws, websocket.CloseGoingAway, "server shutting down")
				return
			}
			if filter != "" && evt.SessionID != filter {
				continue
			}
			if err := s.writeEvent(ws, evt); err != nil {
				logger.Debug("live write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		}
	}
}

// drainClient reads until the peer goes away so control frames are processed.
func (s *Server) drainClient(ws *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	ws.SetReadLimit(512)
	_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeEvent(ws *websocket.Conn, evt progress.Event) error {
	if err := ws.SetWriteDeadline(time.Now().Add(liveWriteWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ws.WriteJSON(evt); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (s *Server) closeLive(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
}
