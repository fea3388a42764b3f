package server

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/nsbus/internal/wsconn"
	"github.com/vango-dev/nsbus/pkg/emitter"
	"github.com/vango-dev/nsbus/pkg/metrics"
	"github.com/vango-dev/nsbus/pkg/protocol"
)

// connection is one physical WebSocket connection. The registry entry for
// its id may outlive it when the client reconnects.
type connection struct {
	server *Server
	id     string
	conn   *wsconn.Conn
	logger *slog.Logger
}

func newConnection(s *Server, id string, conn *wsconn.Conn) *connection {
	return &connection{
		server: s,
		id:     id,
		conn:   conn,
		logger: s.logger.With("conn_id", id),
	}
}

func (c *connection) send(namespace string, payload any) error {
	data, err := c.server.codec.Pack(namespace, payload)
	if err != nil {
		return err
	}
	return c.conn.Send(data)
}

func (c *connection) extendDeadline() {
	c.conn.WS().SetReadDeadline(time.Now().Add(c.server.config.ReadTimeout))
}

// readLoop reads frames until the transport fails, then releases the
// registry entry. It is the only reader of the connection.
func (c *connection) readLoop() {
	defer c.server.conns.Done()

	ws := c.conn.WS()
	c.extendDeadline()
	ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	ws.SetPingHandler(func(appData string) error {
		c.extendDeadline()
		err := ws.WriteControl(websocket.PongMessage, []byte(appData),
			time.Now().Add(c.server.config.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	var readErr error
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		c.extendDeadline()
		c.handleFrame(data)
	}

	c.conn.Close()
	c.server.metrics.ConnectionClosed()

	if !c.server.registry.Release(c.id, c.conn) {
		c.logger.Debug("superseded connection closed")
		return
	}

	if unexpectedReadError(readErr) && !c.server.isClosing() {
		c.server.emitError(c.id, "read", readErr)
	}

	c.logger.Info("connection closed")
	c.server.events.Emit(emitter.Event{Name: EventClose, Payload: c.id, ConnID: c.id})
}

// unexpectedReadError reports whether err ended the connection abnormally.
// Clean close handshakes and reads on a connection this side closed are
// expected.
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

// heartbeat pings the client until the connection closes.
func (c *connection) heartbeat() {
	defer c.server.conns.Done()

	ticker := time.NewTicker(c.server.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.Ping(); err != nil {
				return
			}
		case <-c.conn.Done():
			return
		}
	}
}

func (c *connection) handleFrame(data []byte) {
	s := c.server

	msg, ok := s.codec.Unpack(data)
	if !ok {
		s.metrics.FrameReceived(metrics.FrameDropped)
		c.logger.Debug("dropping undecodable frame", "bytes", len(data))
		return
	}

	switch msg.Namespace {
	case protocol.NamespaceSubscribe:
		s.metrics.FrameReceived(metrics.FrameSub)
		patterns := protocol.Patterns(msg.Payload)
		subs, err := s.registry.AddSubscriptions(c.id, patterns...)
		if err != nil {
			c.logger.Debug("subscribe failed", "error", err)
			return
		}
		c.logger.Debug("subscribed", "patterns", patterns, "subscriptions", len(subs))

	case protocol.NamespaceUnsubscribe:
		s.metrics.FrameReceived(metrics.FrameUnsub)
		for _, p := range protocol.Patterns(msg.Payload) {
			if _, err := s.registry.RemoveSubscription(c.id, p); err != nil {
				c.logger.Debug("unsubscribe failed", "error", err)
				return
			}
		}

	case EventConnection, EventReconnect, EventClose, EventError:
		s.metrics.FrameReceived(metrics.FrameDropped)
		c.logger.Debug("dropping frame",
			"error", NewProtocolError(c.id, msg.Namespace, "reserved event name"))

	default:
		s.metrics.FrameReceived(metrics.FrameEvent)
		s.events.Emit(emitter.Event{
			Name:    msg.Namespace,
			Payload: msg.Payload,
			ConnID:  c.id,
		})
	}
}
