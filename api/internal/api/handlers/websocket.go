package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

// ==============================================================================
// 1. WebSocket Configuration & Constants
// ==============================================================================

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// We only stream OUT, so inbound is tiny.
	maxMessageSize = 512
)

// The route sits behind RequireAuthentication and the CORS middleware, which
// already validated the Origin header.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventSource is the subscription side of the telemetry hub.
type EventSource interface {
	Subscribe(topic string) chan domain.ProxyEvent
	Unsubscribe(topic string, ch chan domain.ProxyEvent)
}

// ==============================================================================
// 2. The Handler Struct (Dependency Injection)
// ==============================================================================

type WebSocketHandler struct {
	Events EventSource
	Logger *slog.Logger
}

func NewWebSocketHandler(events EventSource, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		Events: events,
		Logger: logger,
	}
}

// ==============================================================================
// 3. HTTP Methods (The Upgrader)
// ==============================================================================

// StreamProxyEvents handles GET /api/v1/ws/proxy/events
func (h *WebSocketHandler) StreamProxyEvents(w http.ResponseWriter, r *http.Request) {
	userClaims, ok := r.Context().Value(domain.UserContextKey).(*domain.UserClaims)
	if !ok {
		http.Error(w, `{"message": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade WebSocket connection", slog.String("error", err.Error()))
		return
	}

	events := h.Events.Subscribe(nginx.EventTopic)
	defer h.Events.Unsubscribe(nginx.EventTopic, events)

	h.Logger.Info("Proxy event stream opened", slog.String("user_id", userClaims.Subject.String()))

	// The read pump detects the disconnect; the write pump blocks this handler until then.
	done := make(chan struct{})
	go h.readPump(ws, done)
	h.writePump(ws, events, done)
}

// ==============================================================================
// 4. The Write Pump
// ==============================================================================

func (h *WebSocketHandler) writePump(ws *websocket.Conn, events <-chan domain.ProxyEvent, done <-chan struct{}) {
	defer ws.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "Stream closed"))
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				h.Logger.Error("Failed to write JSON to WebSocket", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// ==============================================================================
// 5. The Read Pump (Connection Keep-Alive)
// ==============================================================================

func (h *WebSocketHandler) readPump(ws *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Client messages are ignored; reading processes Pong/Close and detects disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Warn("WebSocket closed unexpectedly", slog.String("error", err.Error()))
			}
			return
		}
	}
}
