package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func stateSnapshots(stream string) (Message, bool) {
	switch stream {
	case "session", "feed":
		return Message{Event: EventSnapshot, Data: map[string]any{"phase": "initial"}}, true
	}
	return Message{}, false
}

func newHubServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var streams []string
		if raw := r.URL.Query().Get("streams"); raw != "" {
			streams = strings.Split(raw, ",")
		}
		hub.Serve(streams, w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func dialHub(t *testing.T, server *httptest.Server, streams string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	if streams != "" {
		wsURL += "?streams=" + streams
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestServeReplaysSnapshotsOnConnect(t *testing.T) {
	hub := NewHub(stateSnapshots, "session", "feed")
	server := newHubServer(t, hub)

	conn := dialHub(t, server, "")

	// Connecting without an explicit list subscribes to every stream; the
	// replay order follows map iteration, so collect both.
	seen := map[string]Message{}
	for i := 0; i < 2; i++ {
		msg := readMessage(t, conn)
		seen[msg.Stream] = msg
	}

	for _, stream := range []string{"session", "feed"} {
		msg, ok := seen[stream]
		if !ok {
			t.Fatalf("no snapshot replayed for stream %q", stream)
		}
		if msg.Event != EventSnapshot {
			t.Fatalf("stream %q: expected event %q, got %q", stream, EventSnapshot, msg.Event)
		}
		data, ok := msg.Data.(map[string]any)
		if !ok || data["phase"] != "initial" {
			t.Fatalf("stream %q: unexpected snapshot payload %#v", stream, msg.Data)
		}
	}
}

func TestBroadcastReachesStreamSubscribers(t *testing.T) {
	hub := NewHub(stateSnapshots, "session", "feed")
	server := newHubServer(t, hub)

	conn := dialHub(t, server, "feed")
	if msg := readMessage(t, conn); msg.Stream != "feed" || msg.Event != EventSnapshot {
		t.Fatalf("expected feed snapshot first, got %+v", msg)
	}

	// The session broadcast has no subscriber here, so the next delivery
	// must be the feed update.
	hub.BroadcastStream("session", Message{Event: EventUpdate})
	hub.BroadcastStream("feed", Message{Event: EventUpdate, Data: map[string]any{"phase": "loaded"}})

	msg := readMessage(t, conn)
	if msg.Stream != "feed" || msg.Event != EventUpdate {
		t.Fatalf("expected feed update, got %+v", msg)
	}
	data, ok := msg.Data.(map[string]any)
	if !ok || data["phase"] != "loaded" {
		t.Fatalf("unexpected update payload %#v", msg.Data)
	}
}

func TestUnknownStreamIsIgnored(t *testing.T) {
	hub := NewHub(stateSnapshots, "session")
	server := newHubServer(t, hub)

	conn := dialHub(t, server, "bogus,session")
	if msg := readMessage(t, conn); msg.Stream != "session" {
		t.Fatalf("expected session snapshot, got %+v", msg)
	}

	// If the unknown stream had been registered its update would arrive
	// ahead of the session sentinel.
	hub.BroadcastStream("bogus", Message{Event: EventUpdate})
	hub.BroadcastStream("session", Message{Event: EventUpdate})

	if msg := readMessage(t, conn); msg.Stream != "session" {
		t.Fatalf("unknown stream leaked through: %+v", msg)
	}
}

func TestPingControlRepliesPong(t *testing.T) {
	hub := NewHub(nil, "session")
	server := newHubServer(t, hub)

	conn := dialHub(t, server, "session")
	if err := conn.WriteJSON(map[string]any{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	if msg := readMessage(t, conn); msg.Event != EventPong {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestControlSubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub(stateSnapshots, "session", "feed")
	server := newHubServer(t, hub)

	conn := dialHub(t, server, "session")
	if msg := readMessage(t, conn); msg.Stream != "session" {
		t.Fatalf("expected session snapshot, got %+v", msg)
	}

	// Subscribing over the socket replays the snapshot of the added stream.
	if err := conn.WriteJSON(map[string]any{"action": "subscribe", "streams": []string{"feed"}}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if msg := readMessage(t, conn); msg.Stream != "feed" || msg.Event != EventSnapshot {
		t.Fatalf("expected feed snapshot after subscribe, got %+v", msg)
	}

	if err := conn.WriteJSON(map[string]any{"action": "unsubscribe", "streams": []string{"session"}}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	// The pong confirms the read loop has applied the unsubscribe.
	if err := conn.WriteJSON(map[string]any{"action": "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readMessage(t, conn); msg.Event != EventPong {
		t.Fatalf("expected pong, got %+v", msg)
	}

	hub.BroadcastStream("session", Message{Event: EventUpdate})
	hub.BroadcastStream("feed", Message{Event: EventUpdate})

	if msg := readMessage(t, conn); msg.Stream != "feed" {
		t.Fatalf("unsubscribed stream still delivered: %+v", msg)
	}
}

func TestOriginPolicy(t *testing.T) {
	hub := NewHub(nil, "session")
	server := newHubServer(t, hub)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"http://files.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != websocket.ErrBadHandshake {
		t.Fatalf("expected handshake rejection for remote origin, got %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, resp, err = websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("loopback origin should connect: %v", err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	_ = conn.Close()
}
