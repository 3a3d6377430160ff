package gateway

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	collab "github.com/sermonsmith/collab"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound message size in bytes.
	maxMessageSize = 64 * 1024
	// Outbound queue depth per connection.
	sendBuffer = 256
)

// Conn is one authenticated websocket connection. Outbound delivery goes
// through a buffered channel drained by a single write pump, so concurrent
// broadcasts never interleave writes on the socket.
type Conn struct {
	ws        *websocket.Conn
	principal collab.Principal

	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, principal collab.Principal) *Conn {
	return &Conn{
		ws:        ws,
		principal: principal,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// Principal returns the identity attached at connection time.
func (c *Conn) Principal() collab.Principal {
	return c.principal
}

// trySend enqueues a frame without blocking. A full queue means the peer is
// not draining; the frame is dropped and the failure reported.
func (c *Conn) trySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close makes trySend fail fast and tears the socket down. Safe to call from
// multiple goroutines.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				glog.Warningf("gateway: write to %s failed: %v", c.principal.UserID, err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
