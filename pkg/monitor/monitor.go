// Package monitor broadcasts live stream statistics to connected dashboard
// clients over WebSocket, restructured as a server-side fan-out hub from
// the client dial/read/write/ping loop shape in the teacher's
// shared/networking Transport.
package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trylle/netvid/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stats is one snapshot of stream health, broadcast to every client.
type Stats struct {
	StreamID        string    `json:"stream_id"`
	Timestamp       time.Time `json:"timestamp"`
	FramesCompleted uint64    `json:"frames_completed"`
	ChunksLost      uint64    `json:"chunks_lost"`
	BitrateBps      float64   `json:"bitrate_bps"`
}

// Broadcaster fans out Stats snapshots to every connected WebSocket client.
type Broadcaster struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Stats
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(log *logging.Logger) *Broadcaster {
	return &Broadcaster{log: log, clients: make(map[*client]struct{})}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a broadcast target until it disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.log != nil {
			b.log.Warn("monitor upgrade failed", logging.Fields{"error": err.Error()})
		}
		return
	}

	c := &client{conn: conn, send: make(chan Stats, 16)}

	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go c.writePump()
	go b.readPump(c)
}

// readPump drains and discards client frames, only watching for the
// connection closing or failing its pong deadline.
func (b *Broadcaster) readPump(c *client) {
	defer b.removeClient(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case stats, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(stats)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish fans out one Stats snapshot to every connected client, dropping
// it for clients whose send buffer is full rather than blocking.
func (b *Broadcaster) Publish(stats Stats) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.clients {
		select {
		case c.send <- stats:
		default:
			if b.log != nil {
				b.log.Warn("monitor client backlogged, dropping snapshot", nil)
			}
		}
	}
}

func (b *Broadcaster) removeClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
	b.mu.Unlock()
}

// Close disconnects every connected client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for c := range b.clients {
		close(c.send)
		delete(b.clients, c)
	}
}
