package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/hub"
)

const (
	// feedWriteTimeout bounds a single write so a stalled client cannot pin
	// the handler goroutine.
	feedWriteTimeout = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxInboundBytes  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is gated by API key, not by Origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// subscribe registers a connection with the hub and queues one MONITOR_UPDATE
// per active monitor. The returned func unregisters and closes it.
func (s *Server) subscribe(ctx context.Context) (*hub.Conn, func(), error) {
	monitors, err := s.Store.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: %w", err)
	}
	conn := hub.NewConn(hub.DefaultBuffer + len(monitors))
	s.Hub.Register(conn)
	for _, m := range monitors {
		_ = conn.Send(hub.MonitorUpdate{Monitor: m})
	}
	s.Logger.Info("feed_connected", zap.String("conn_id", conn.ID()), zap.Int("subscribers", s.Hub.Len()))
	return conn, func() {
		s.Hub.Unregister(conn)
		conn.Close()
		s.Logger.Info("feed_disconnected", zap.String("conn_id", conn.ID()))
	}, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "push feed disabled")
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.Logger.Debug("ws_upgrade_failed", zap.Error(err))
		return
	}
	defer ws.Close()

	conn, unsubscribe, err := s.subscribe(r.Context())
	if err != nil {
		s.Logger.Warn("ws_subscribe_failed", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot failed"),
			time.Now().Add(feedWriteTimeout))
		return
	}
	defer unsubscribe()

	// Clients only talk to us with control frames; the read loop exists to
	// notice when they go away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(maxInboundBytes)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case msg, ok := <-conn.Outbox():
			if !ok {
				return
			}
			b, err := hub.Encode(msg)
			if err != nil {
				s.Logger.Warn("feed_encode_failed", zap.String("type", msg.Type()), zap.Error(err))
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
				s.Logger.Debug("ws_write_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "push feed disabled")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	rc := http.NewResponseController(w)

	conn, unsubscribe, err := s.subscribe(r.Context())
	if err != nil {
		s.Logger.Warn("sse_subscribe_failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "could not load monitors")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	write := func(chunk string) error {
		// not every ResponseWriter supports deadlines; writing without one is fine
		_ = rc.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if _, err := fmt.Fprint(w, chunk); err != nil {
			return err
		}
		return rc.Flush()
	}
	if err := write(": connected\n\n"); err != nil {
		return
	}

	keepalive := time.NewTicker(pingPeriod)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-conn.Outbox():
			if !ok {
				return
			}
			b, err := hub.Encode(msg)
			if err != nil {
				s.Logger.Warn("feed_encode_failed", zap.String("type", msg.Type()), zap.Error(err))
				continue
			}
			if err := write(fmt.Sprintf("event: %s\ndata: %s\n\n", msg.Type(), b)); err != nil {
				s.Logger.Debug("sse_write_failed", zap.String("conn_id", conn.ID()), zap.Error(err))
				return
			}
		case <-keepalive.C:
			if err := write(": ping\n\n"); err != nil {
				return
			}
		}
	}
}
