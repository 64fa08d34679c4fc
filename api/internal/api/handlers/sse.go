package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

const sseKeepAlive = 25 * time.Second

// SSEHandler relays proxy pipeline events to clients that cannot hold a websocket.
type SSEHandler struct {
	Events EventSource
	Logger *slog.Logger
}

func NewSSEHandler(events EventSource, logger *slog.Logger) *SSEHandler {
	return &SSEHandler{Events: events, Logger: logger}
}

// StreamProxyEvents handles GET /api/v1/proxy/events
func (h *SSEHandler) StreamProxyEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// 🛡️ Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.Events.Subscribe(nginx.EventTopic)
	defer h.Events.Unsubscribe(nginx.EventTopic, events)

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.Logger.Debug("SSE client disconnected")
			return

		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("Failed to encode proxy event", slog.Any("error", err))
				continue
			}

			// 🛡️ Format as SSE data
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Status, payload); err != nil {
				h.Logger.Warn("Failed to write to SSE client", slog.Any("error", err))
				return
			}
			// Force push the buffer to the frontend
			flusher.Flush()
		}
	}
}
