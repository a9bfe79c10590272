package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fvg-liquidity-bot/internal/events"
	"fvg-liquidity-bot/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser origin is enforced by the CORS layer on the REST routes; the
	// feed is read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const clientBufferSize = 64

// Hub fans system events out to connected websocket clients. A client that
// cannot keep up is dropped rather than allowed to stall the others.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewHub creates an empty hub
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     log.WithComponent("ws-hub"),
	}
}

// Broadcast queues an event for every connected client. Subscribed to the
// event bus at startup.
func (h *Hub) Broadcast(ev events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// Slow consumer; disconnect it.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// HandleConnection upgrades an HTTP request to a websocket and streams events
// until the client disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan events.Event, clientBufferSize),
	}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Info("websocket client connected", "clients", count)

	go h.writeLoop(cl)
	h.readLoop(cl)
}

func (h *Hub) writeLoop(cl *client) {
	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	defer cl.conn.Close()

	for {
		select {
		case ev, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteJSON(ev); err != nil {
				h.remove(cl)
				return
			}
		case <-ping.C:
			cl.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(cl)
				return
			}
		}
	}
}

// readLoop drains client frames so pong handling works; the feed itself is
// one-way.
func (h *Hub) readLoop(cl *client) {
	defer h.remove(cl)
	cl.conn.SetReadLimit(512)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	cl.conn.Close()
}
