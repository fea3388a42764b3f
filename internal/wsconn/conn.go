// Package wsconn wraps a gorilla WebSocket connection with serialized writes.
//
// gorilla/websocket allows one concurrent writer. Publish fan-out, heartbeat
// pings and the close handshake all write from different goroutines, so every
// write goes through Conn's mutex with a fresh write deadline.
package wsconn

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by writes on a closed Conn.
var ErrClosed = errors.New("wsconn: closed")

// DefaultWriteTimeout is used when a Conn is created with a zero timeout.
const DefaultWriteTimeout = 10 * time.Second

// Conn is a WebSocket connection safe for concurrent writers.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New wraps ws.
func New(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// WS returns the underlying connection. Reads must happen on a single
// goroutine; writes must go through Conn.
func (c *Conn) WS() *websocket.Conn {
	return c.ws
}

// Done is closed once the Conn is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send writes one binary message. A failed write closes the connection.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

// Ping writes a ping control frame.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// CloseWith sends a close frame with code and text, then closes the
// connection. It is safe to call more than once.
func (c *Conn) CloseWith(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, text)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	return c.closeLocked()
}

// Close closes the connection without a close handshake.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	return c.closeLocked()
}

// Closed reports whether the Conn has been closed.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) closeLocked() error {
	c.closed = true
	close(c.done)
	return c.ws.Close()
}
