package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
	"github.com/pyrohost/pyro-node-agent/internal/lifecycle"
)

// writeWait bounds how long a single websocket frame write may block -
// a stalled client must never stall the bridge goroutine indefinitely.
const writeWait = 5 * time.Second

// pingInterval keeps intermediary proxies from closing an otherwise idle
// connection; pongWait is the read deadline reset on every pong.
const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the panel and its operators are the only intended callers; this
	// agent has no browser-facing origin to restrict against.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsHandler struct {
	bus       *eventbus.Bus
	lifecycle *lifecycle.Manager
	logger    *slog.Logger
}

// sendCommandFrame is the inbound shape of a subscriber's send-command
// frame, per §4.12: "Subscribers may send send-command {id, command}; the
// bus routes it to the Command Injector."
type sendCommandFrame struct {
	ID      string `json:"id"`
	Command string `json:"command"`
}

// Serve handles GET /api/servers/{serverId}/ws, bridging the instance's
// eventbus room to one websocket connection per client, per §11.2: the
// bus already drops the oldest queued event for a lagging subscriber, so
// this bridge only has to forward what it receives.
func (h *wsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "serverId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "instance", id, "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.bus.Subscribe(id)
	defer unsubscribe()

	go h.readPump(conn, id)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteJSON(evt); err != nil {
				h.logger.Debug("websocket write failed, closing", "instance", id, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames, processing control frames (pong, close)
// and routing each send-command frame to the Command Injector via
// lifecycle.Manager.SendCommand, which itself publishes the result back
// to the room as a command-output event (§4.12).
func (h *wsHandler) readPump(conn *websocket.Conn, instanceID string) {
	for {
		var frame sendCommandFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Command == "" {
			continue
		}
		if err := h.lifecycle.SendCommand(context.Background(), instanceID, frame.Command); err != nil {
			h.logger.Debug("send-command over websocket failed", "instance", instanceID, "error", err)
		}
	}
}
