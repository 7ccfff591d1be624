package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	// events queued per viewer before it is dropped as too slow
	viewerQueue = 16
)

// Event tells open inventory and request-history views that the stored
// data changed. Type is "<resource>_<action>", e.g. "inventory_updated".
type Event struct {
	Type     string `json:"type"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
	ID       any    `json:"id"`
}

// viewer is one connected browser tab. Only its writer goroutine touches
// conn for writing.
type viewer struct {
	conn *ws.Conn
	send chan []byte
}

// Hub fans change events out to every connected viewer.
type Hub struct {
	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{viewers: make(map[*viewer]struct{})}
}

func (h *Hub) join(v *viewer) {
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
}

// leave removes v and closes its queue. Safe to call twice.
func (h *Hub) leave(v *viewer) {
	h.mu.Lock()
	if _, ok := h.viewers[v]; ok {
		delete(h.viewers, v)
		close(v.send)
	}
	h.mu.Unlock()
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// Broadcast queues evt for every viewer. A viewer whose queue is full is
// disconnected; the page reloads its tables when it reconnects.
func (h *Hub) Broadcast(evt Event) {
	if h == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("ws: marshal %s: %v", evt.Type, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for v := range h.viewers {
		select {
		case v.send <- data:
		default:
			log.Printf("ws: viewer too slow, dropping")
			delete(h.viewers, v)
			close(v.send)
		}
	}
}

// BroadcastChange announces action on resource, e.g.
// ("inventory", "updated", "W1") -> inventory_updated.
func (h *Hub) BroadcastChange(resource, action string, id any) {
	h.Broadcast(Event{
		Type:     resource + "_" + action,
		Resource: resource,
		Action:   action,
		ID:       id,
	})
}

// Upgrader is the default WebSocket upgrader. The server listens on
// loopback, so any origin that reached it is local.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection and streams change events to it
// until the browser goes away.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		return
	}

	v := &viewer{conn: conn, send: make(chan []byte, viewerQueue)}
	hub.join(v)
	log.Printf("ws: viewer connected (%d total)", hub.Clients())

	go v.writeLoop()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Viewers only listen; reading keeps pongs and the close frame flowing.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	hub.leave(v)
	log.Printf("ws: viewer disconnected")
}

// writeLoop drains the queue and pings until the queue is closed or a
// write fails.
func (v *viewer) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()
	for {
		select {
		case data, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				v.conn.WriteMessage(ws.CloseMessage, nil)
				return
			}
			if err := v.conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
