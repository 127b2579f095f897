package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gartstein/interviews/internal/interviews/controller"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	feedBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// feed streams the caller's workspace changes over a WebSocket. Changes that
// arrive faster than the client reads are dropped; clients resync with GET
// /v1/companies after a "cleared" or on reconnect.
func (h *HTTPHandler) feed(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("user_id", ws.UserID()))

	changes := make(chan controller.Change, feedBuffer)
	unsubscribe := ws.Subscribe(func(c controller.Change) {
		select {
		case changes <- c:
		default:
			logger.Warn("Feed client too slow, dropping change", zap.String("type", string(c.Type)))
		}
	})
	defer unsubscribe()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The read loop only notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("Feed read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	if err := h.writeFeed(conn, map[string]string{"type": "connected", "state": ws.State().String()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case c := <-changes:
			if err := h.writeFeed(conn, c); err != nil {
				logger.Debug("Feed write failed", zap.Error(err))
				return
			}
			if c.Type == controller.ChangeCleared {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *HTTPHandler) writeFeed(conn *websocket.Conn, v any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
