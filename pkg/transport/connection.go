// Copyright 2025 Certen Protocol
//
// One gorilla/websocket connection per session: a read-pump goroutine and
// a write-pump goroutine, the standard gorilla pattern, feeding/draining
// the session actor's mailbox indirectly through Handler.

package transport

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
	outboundBuffer = 128
)

// Connection wraps one client websocket connection and its outbound
// message queue.
type Connection struct {
	ws      *websocket.Conn
	outbox  chan interface{}
	closeCh chan struct{}
	logger  *log.Logger
}

func newConnection(ws *websocket.Conn, logger *log.Logger) *Connection {
	ws.SetReadLimit(maxMessageSize)
	return &Connection{
		ws:      ws,
		outbox:  make(chan interface{}, outboundBuffer),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
}

// Send enqueues msg for the write pump. It never blocks the caller's
// generation loop for long: a full outbox indicates a slow client and the
// message is dropped with a log line rather than stalling inference.
func (c *Connection) Send(msg interface{}) {
	select {
	case c.outbox <- msg:
	default:
		c.logger.Printf("outbound buffer full, dropping message type %T", msg)
	}
}

// Close signals both pumps to stop and closes the underlying socket.
func (c *Connection) Close() {
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	c.ws.Close()
}

// readPump reads inbound messages until the connection closes, decoding
// only the shared envelope (type + sessionId); full dispatch happens in
// Handler.serve.
func (c *Connection) readPump(out chan<- []byte) {
	defer close(out)

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Printf("unexpected close: %v", err)
			}
			return
		}
		select {
		case out <- raw:
		case <-c.closeCh:
			return
		}
	}
}

// writePump drains outbox to the socket and sends periodic pings,
// stopping when Close is called.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.outbox:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			b, err := json.Marshal(msg)
			if err != nil {
				c.logger.Printf("failed to marshal outbound message: %v", err)
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}
