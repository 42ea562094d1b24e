// Package statushub fans out control-loop and supervisor lifecycle events
// to connected diagnostic consumers over WebSocket. It never affects
// scaling decisions: every publish is best-effort, and a hub with zero
// connected clients simply drops events on the floor.
//
// Grounded in control_plane/ws_hub.go's MetricsHub, adapted from a
// per-tenant ticker-driven metrics broadcaster to an event-driven one: this
// hub pushes a message exactly when a ControlLoop or Supervisor publishes
// one, instead of polling a dashboard service on a fixed interval.
package statushub

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const maxConnections = 200

// Event is one lifecycle notification published to the hub.
type Event struct {
	Time   time.Time `json:"time"`
	Tenant string    `json:"tenant"`
	AppID  string    `json:"app_id"`
	Kind   string    `json:"kind"` // e.g. "loop_started", "loop_stopped", "scale_action", "alarm"
	Detail string    `json:"detail"`
}

// Hub manages WebSocket connections and broadcasts Events to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{
		clients:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers it
// as a subscriber. Mount at GET /ws/status (§6 "Additional interfaces").
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("statushub: upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if len(h.clients) >= maxConnections {
		h.mu.Unlock()
		conn.Close()
		log.Printf("statushub: connection rejected, max connections (%d) reached", maxConnections)
		return
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	// Drain reads so the connection's close/ping frames are processed;
	// this hub is publish-only, so any message from the client is ignored.
	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Publish best-effort broadcasts ev to every connected client. Never
// blocks on a slow or dead connection longer than its write deadline, and
// never returns an error to the caller -- publish failures are a hub
// concern, never a control-loop concern.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("statushub: write error, dropping client: %v", err)
			go h.unregister(conn)
		}
	}
}

// Shutdown closes every connected client. Safe to call once during process
// teardown.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// ClientCount returns the number of connected clients, for diagnostics.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
