package orchestrator

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// checkOrigin applies the allowed origins to browser upgrades. Requests without an
// Origin header come from non-browser clients and are accepted.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.log.Warn("websocket origin rejected", slog.String("origin", origin))
	return false
}

// EventsWebSocket handles GET /sessions/{session_id}/events/ws. Every event the
// session records after the upgrade is sent as a JSON text message. The connection
// is closed when the session closes.
func (h *Handler) EventsWebSocket(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	events, cancel, err := h.svc.Subscribe(id)
	if err != nil {
		h.fail(w, "subscribe", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	log := h.log.With(slog.String("session_id", string(id)))
	done := make(chan struct{})
	go readPump(conn, done, log)
	writePump(conn, events, done, log)
	cancel()
}

// readPump discards client messages and signals done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}, log *slog.Logger) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, events <-chan RecordedEvent, done <-chan struct{}, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				log.Error("encode event", slog.String("error", err.Error()))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				log.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
