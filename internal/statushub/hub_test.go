package statushub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubBroadcastsToConnectedClient(t *testing.T) {
	h := New()
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server goroutine a moment to register the connection.
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", h.ClientCount())
	}

	h.Publish(Event{Tenant: "team-a", AppID: "/svc", Kind: "loop_started", Detail: "ok"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("reading published event: %v", err)
	}
	if got.Kind != "loop_started" || got.Tenant != "team-a" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestPublishWithNoClientsIsNoop(t *testing.T) {
	h := New()
	h.Publish(Event{Kind: "noop"}) // must not panic or block
}
