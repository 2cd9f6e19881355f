package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WSHub pushes live events to connected WebSocket clients
type WSHub struct {
	conns map[*wsClient]struct{}
	mu    sync.Mutex
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // protects conn writes
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{conns: make(map[*wsClient]struct{})}
}

// Broadcast sends the event to all connected clients; clients whose write
// fails are dropped.
func (h *WSHub) Broadcast(event Event) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.conns))
	for c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := c.conn.WriteJSON(event)
		c.writeMu.Unlock()

		if err != nil {
			h.remove(c)
			c.conn.Close()
		}
	}
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

// Count returns the number of connected clients
func (h *WSHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (s *Server) wsHandler() http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		client := &wsClient{conn: conn}
		s.wsHub.add(client)

		// Send the current snapshot so new clients render immediately.
		client.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(Event{Type: "state", Data: s.ctrl.Snapshot()}); err != nil {
			client.writeMu.Unlock()
			s.wsHub.remove(client)
			conn.Close()
			return
		}
		client.writeMu.Unlock()

		// Read loop exists only to detect disconnects; inbound messages
		// are ignored.
		go func() {
			defer func() {
				s.wsHub.remove(client)
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
