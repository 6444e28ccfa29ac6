package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one websocket connection of one user.
type client struct {
	userID string
	ws     *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
}

func newClient(userID string, ws *websocket.Conn) *client {
	return &client{
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, 16),
	}
}

// enqueue hands a frame to the write pump without blocking.
func (c *client) enqueue(frame []byte) (ok bool) {
	// The channel may close between the hub's snapshot and this send.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump consumes (and discards) client frames so pongs and close frames
// are processed. Returns when the connection dies.
func (c *client) readPump() {
	defer c.ws.Close()
	c.ws.SetReadLimit(512)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
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
