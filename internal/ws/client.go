package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// client is one websocket subscriber with a buffered outbound queue. The
// outbound channel is never closed; teardown always goes through closing
// the connection, which unblocks both loops.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	outbound  chan []byte
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:      h,
		conn:     conn,
		outbound: make(chan []byte, 64),
	}
}

// send queues a message; a full queue means the subscriber cannot keep up
// and gets disconnected.
func (c *client) send(data []byte) {
	select {
	case c.outbound <- data:
	default:
		c.hub.logger.Warn("ws.client_too_slow", zap.String("remote", c.conn.RemoteAddr().String()))
		c.hub.remove(c)
		c.close()
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// readLoop drains inbound frames. Subscribers are read-only; anything they
// send is discarded, but the loop keeps pong handling alive and notices
// disconnects.
func (c *client) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.close()
	}()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
