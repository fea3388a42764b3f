package client

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/nsbus/internal/wsconn"
	"github.com/vango-dev/nsbus/pkg/emitter"
)

func (c *Client) extendDeadline(ws *websocket.Conn) {
	if c.config.ReadTimeout > 0 {
		ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}

// readLoop re-emits every decodable frame as a local event until the
// connection fails.
func (c *Client) readLoop(conn *wsconn.Conn, gen uint64) {
	ws := conn.WS()
	c.extendDeadline(ws)
	ws.SetPongHandler(func(string) error {
		c.extendDeadline(ws)
		return nil
	})

	var readErr error
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.extendDeadline(ws)

		msg, ok := c.codec.Unpack(data)
		if !ok {
			c.logger.Debug("dropping undecodable frame", "bytes", len(data))
			continue
		}
		switch msg.Namespace {
		case EventOpen, EventClose, EventReady, EventError:
			c.logger.Debug("dropping frame with lifecycle name", "namespace", msg.Namespace)
			continue
		}
		c.events.Emit(emitter.Event{Name: msg.Namespace, Payload: msg.Payload})
	}

	conn.Close()
	c.handleDisconnect(gen, readErr)
}

func (c *Client) heartbeat(conn *wsconn.Conn) {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

func (c *Client) handleDisconnect(gen uint64, readErr error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	userClosed := c.userClosed
	c.conn = nil
	reconnect := c.config.AutoReconnect && !userClosed
	stop := c.stop
	if reconnect {
		c.state = StateConnecting
	} else {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if !userClosed && unexpectedReadError(readErr) {
		c.emitError(readErr)
	}
	c.logger.Info("disconnected", "reconnect", reconnect)
	c.events.Emit(emitter.Event{Name: EventClose, Payload: c.id})

	if reconnect && stop != nil {
		go c.reconnectLoop(stop)
	}
}

func (c *Client) reconnectLoop(stop <-chan struct{}) {
	backoff := c.config.Backoff
	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		delay := NextBackoffDelay(backoff, attempt, c.rng)
		c.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}

		c.mu.Lock()
		if c.userClosed || c.state == StateOpen {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.config.HandshakeTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			return
		}

		c.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
		if backoff.MaxAttempts > 0 && attempt >= backoff.MaxAttempts {
			c.setState(StateClosed)
			c.emitError(errors.Join(ErrReconnectFailed, err))
			return
		}
	}
}

// unexpectedReadError reports whether err ended the connection abnormally.
func unexpectedReadError(err error) bool {
	if err == nil {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return false
		}
		return true
	}
	return !errors.Is(err, net.ErrClosed)
}
