package ui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/veriface/veriface/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts session snapshots to any connected renderer over WS. It is
// a pure consumer of the session: nothing flows back into the core.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	last    *core.Snapshot
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Publish implements core.StateSink. Slow consumers are dropped rather than
// allowed to stall the session.
func (h *Hub) Publish(s core.Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Str("module", "ui").Msg("marshal snapshot")
		return
	}

	h.mu.Lock()
	h.last = &s
	for c := range h.clients {
		if err := c.trySend(data); err != nil {
			log.Warn().Err(err).Str("module", "ui").Msg("dropping slow renderer")
			delete(h.clients, c)
			c.close()
		}
	}
	h.mu.Unlock()
}

// HandleEvents upgrades the request and streams snapshots until the client
// goes away. The latest snapshot is replayed on connect.
func (h *Hub) HandleEvents(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ui").Msg("ws upgrade")
		return
	}

	client := &wsClient{
		conn: ws,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	if h.last != nil {
		if data, err := json.Marshal(h.last); err == nil {
			_ = client.trySend(data)
		}
	}
	h.mu.Unlock()

	log.Info().Str("module", "ui").Str("remote", ws.RemoteAddr().String()).Msg("renderer connected")
	go client.writePump(ctx, func() { h.remove(client) })
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *wsClient) trySend(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *wsClient) writePump(ctx context.Context, onExit func()) {
	defer onExit()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ui").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ui").Msg("writePump write error")
				return
			}
		}
	}
}

// SetupRouter exposes the renderer event feed on its own engine.
func SetupRouter(ctx context.Context, mode string, hub *Hub) *gin.Engine {
	if mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/events", func(c *gin.Context) {
		hub.HandleEvents(ctx, c)
	})

	return r
}
