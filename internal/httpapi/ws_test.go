package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
)

func TestWSHandler_BridgesBusEventsToClient(t *testing.T) {
	bus := eventbus.New(discardLogger())
	h := &wsHandler{bus: bus, logger: discardLogger()}

	router := chi.NewRouter()
	router.Get("/api/servers/{serverId}/ws", h.Serve)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/servers/srv-1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	// the handler's Subscribe call races the dial's return; republish on
	// an interval until either a read succeeds or the deadline expires,
	// since an early publish before Subscribe registers is a silent no-op.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bus.PublishStatus("srv-1", "online")
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt eventbus.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if evt.Type != eventbus.EventStatus {
		t.Errorf("event type = %q, want %q", evt.Type, eventbus.EventStatus)
	}
	if evt.Instance != "srv-1" {
		t.Errorf("event instance = %q, want %q", evt.Instance, "srv-1")
	}
}

func TestWSHandler_ClientDisconnectDoesNotWedgeTheServer(t *testing.T) {
	bus := eventbus.New(discardLogger())
	h := &wsHandler{bus: bus, logger: discardLogger()}

	router := chi.NewRouter()
	router.Get("/api/servers/{serverId}/ws", h.Serve)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/servers/srv-2/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	conn.Close()

	// a second client must still be able to connect after the first
	// disconnected - the bridge goroutine for the first must not have
	// wedged the handler or the bus.
	time.Sleep(100 * time.Millisecond)
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() after a prior disconnect error: %v", err)
	}
	conn2.Close()
}
