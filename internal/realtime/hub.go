package realtime

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	defaultBufferSize = 64
)

// Message represents a JSON payload delivered to realtime subscribers.
type Message struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   any    `json:"data,omitempty"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// SnapshotFunc supplies the current snapshot for a stream so a fresh
// subscriber starts from known state instead of waiting for the next change.
type SnapshotFunc func(stream string) (Message, bool)

// Hub fans state changes out to WebSocket subscribers. The agent serves a
// single local user, so there is no per-user routing; each connection picks
// the streams it wants to follow.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*connection]struct{}
	known         map[string]struct{}
	snapshot      SnapshotFunc
	upgrader      websocket.Upgrader
}

// NewHub constructs a hub serving the named streams. snapshot may be nil, in
// which case new subscribers only receive future changes.
func NewHub(snapshot SnapshotFunc, streams ...string) *Hub {
	known := make(map[string]struct{}, len(streams))
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			known[stream] = struct{}{}
		}
	}

	return &Hub{
		subscriptions: make(map[string]map[*connection]struct{}),
		known:         known,
		snapshot:      snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Pages served from other machines may not attach to the
				// local agent.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return isLoopback(hostWithoutPort(origin))
			},
		},
	}
}

// Streams returns the stream names this hub serves.
func (h *Hub) Streams() []string {
	streams := make([]string, 0, len(h.known))
	for stream := range h.known {
		streams = append(streams, stream)
	}
	return streams
}

// Serve upgrades the HTTP connection to a WebSocket and subscribes it to the
// requested streams. An empty list subscribes to every known stream.
func (h *Hub) Serve(streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade failed: %v", err)
		return
	}

	if len(streams) == 0 {
		streams = h.Streams()
	}

	client := newConnection(h, conn)
	h.subscribe(client, streams)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastStream delivers a message to every subscriber of the stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	message.Stream = stream
	for client := range clients {
		h.enqueue(client, message)
	}
}

func (h *Hub) subscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if _, ok := h.known[stream]; !ok {
			log.Printf("realtime: ignoring unknown stream '%s'", stream)
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}

		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[*connection]struct{})
		}
		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client] = struct{}{}

		if h.snapshot == nil {
			continue
		}
		if message, ok := h.snapshot(stream); ok {
			message.Stream = stream
			h.enqueue(client, message)
		}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeSubscriptionLocked(client, stream)
		delete(client.streams, stream)
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeSubscriptionLocked(client, stream)
	}
	client.streams = nil
}

func (h *Hub) removeSubscriptionLocked(client *connection, stream string) {
	clients, ok := h.subscriptions[stream]
	if !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subscriptions, stream)
	}
}

// enqueue never blocks; subscribers that stop draining their buffer are
// disconnected. close runs on its own goroutine because callers hold h.mu
// and unregister needs the write lock.
func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case client.send <- message:
	case <-client.quit:
	default:
		log.Printf("realtime: dropping backpressure client")
		go client.close()
	}
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	streams map[string]struct{}
	send    chan Message
	quit    chan struct{}
	once    sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn) *connection {
	return &connection{
		hub:     hub,
		socket:  conn,
		streams: make(map[string]struct{}),
		send:    make(chan Message, defaultBufferSize),
		quit:    make(chan struct{}),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("realtime: unexpected close: %v", err)
			}
			break
		}

		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			log.Printf("realtime: invalid control payload: %v", err)
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			// Clients can send ping control messages; reply with pong.
			select {
			case c.send <- Message{Event: EventPong}:
			case <-c.quit:
			}
		default:
			log.Printf("realtime: unsupported control action '%s'", ctrl.Action)
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-c.quit:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close leaves c.send open so concurrent enqueues stay safe; writeLoop exits
// through the quit channel instead of a channel close.
func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.quit)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	unique := make(map[string]struct{}, len(streams))
	var result []string
	for _, stream := range streams {
		if stream = normalizeStream(stream); stream != "" {
			if _, exists := unique[stream]; !exists {
				unique[stream] = struct{}{}
				result = append(result, stream)
			}
		}
	}
	return result
}
