package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/antscale/antscale/internal/core/observability/log"
	"github.com/antscale/antscale/internal/core/scaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan scaling.PerformanceSnapshot
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}

func (s *StatusServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.lg.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan scaling.PerformanceSnapshot, 16),
	}
	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	go s.writePump(client)
	go s.readPump(client)
}

// Broadcast pushes a snapshot to every connected client. Slow clients
// drop frames instead of blocking the simulation loop.
func (s *StatusServer) Broadcast(snap scaling.PerformanceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- snap:
		default:
		}
	}
}

func (s *StatusServer) writePump(c *wsClient) {
	for snap := range c.send {
		if err := c.conn.WriteJSON(snap); err != nil {
			s.drop(c)
			return
		}
	}
}

// readPump discards inbound frames; it exists to notice disconnects.
func (s *StatusServer) readPump(c *wsClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *StatusServer) drop(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}
