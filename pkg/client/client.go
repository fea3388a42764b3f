// Package client connects to an nsbus server and exchanges namespaced frames.
//
// A Client keeps one outbound connection. Registering the first listener for
// a namespace subscribes to it on the server; removing the last listener
// unsubscribes. The subscription set survives disconnects and is re-sent as a
// single "_sub" frame every time the connection opens.
//
//	c, _ := client.New(&client.ClientConfig{URL: "ws://localhost:9500/ws"})
//	c.On("toclient.*", func(ev emitter.Event) { fmt.Println(ev.Name, ev.Payload) })
//	c.On(client.EventReady, func(emitter.Event) { c.Publish("chat.message", "hi") })
//	c.Connect(ctx)
package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/nsbus/internal/wsconn"
	"github.com/vango-dev/nsbus/pkg/emitter"
	"github.com/vango-dev/nsbus/pkg/protocol"
)

// Client lifecycle events.
const (
	EventOpen  = "open"
	EventClose = "close"
	EventReady = "ready"
	EventError = "error"
)

// lifecycle event names can not be published to or auto-subscribed.
var lifecycle = map[string]struct{}{
	EventOpen:  {},
	EventClose: {},
	EventReady: {},
	EventError: {},
}

// IsReserved reports whether name is a client lifecycle event or a control
// namespace.
func IsReserved(name string) bool {
	if protocol.IsControl(name) {
		return true
	}
	_, ok := lifecycle[name]
	return ok
}

// State is the connection state of a Client.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Client is a pub/sub client. It is safe for concurrent use.
type Client struct {
	config *ClientConfig
	id     string
	events *emitter.Emitter
	codec  *protocol.Codec
	logger *slog.Logger

	mu            sync.Mutex
	conn          *wsconn.Conn
	state         State
	subscriptions []string
	userClosed    bool
	// gen increments with every connection so a stale reader can tell it
	// has been replaced.
	gen  uint64
	stop chan struct{}

	// rng is guarded by mu.
	rng *rand.Rand
}

// New creates a Client. It does not connect.
func New(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	config.applyDefaults()

	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.User != nil {
		// The id travels in the Authorization header instead.
		if config.ID == "" {
			config.ID = u.User.String()
		}
		u.User = nil
		config.URL = u.String()
	}

	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}

	c := &Client{
		config: config,
		id:     id,
		codec:  config.Codec,
		logger: config.Logger.With("component", "client", "client_id", id),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	c.events = emitter.New(
		emitter.WithLogger(c.logger),
		emitter.WithAddHook(c.onListenerAdded),
		emitter.WithRemoveHook(c.onListenerRemoved),
	)
	return c, nil
}

// Dial creates a Client and connects it.
func Dial(ctx context.Context, config *ClientConfig) (*Client, error) {
	c, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscriptions returns a copy of the subscription set.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.subscriptions)
}

// On registers h for events matching pattern. The first listener for a
// non-reserved pattern subscribes to it on the server.
func (c *Client) On(pattern string, h emitter.Handler) emitter.ListenerID {
	return c.events.On(pattern, h)
}

// Once registers h for the next event matching pattern.
func (c *Client) Once(pattern string, h emitter.Handler) emitter.ListenerID {
	return c.events.Once(pattern, h)
}

// Off removes a listener. Removing the last listener for a pattern
// unsubscribes from it.
func (c *Client) Off(pattern string, id emitter.ListenerID) bool {
	return c.events.Off(pattern, id)
}

// Connect dials the server. On success the client emits EventOpen, sends
// its subscriptions and emits EventReady.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.userClosed = false
	c.stop = make(chan struct{})
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.setState(StateClosed)
		return err
	}
	return nil
}

// Reconnect replaces the current connection with a new one under the same
// identity.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	old := c.conn
	c.gen++
	c.conn = nil
	c.state = StateConnecting
	c.userClosed = false
	if c.stop == nil {
		c.stop = make(chan struct{})
	}
	c.mu.Unlock()

	if old != nil {
		_ = old.CloseWith(websocket.CloseNormalClosure, "reconnect")
	}
	if err := c.dial(ctx); err != nil {
		c.setState(StateClosed)
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	header := http.Header{}
	for k, v := range c.config.Header {
		header[k] = slices.Clone(v)
	}
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.id)))

	ws, resp, err := c.config.Dialer.DialContext(ctx, c.config.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.config.URL, err)
	}

	conn := wsconn.New(ws, c.config.WriteTimeout)

	c.mu.Lock()
	if c.userClosed {
		c.mu.Unlock()
		_ = conn.CloseWith(websocket.CloseNormalClosure, "")
		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateOpen
	subs := slices.Clone(c.subscriptions)
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.config.URL)
	c.events.Emit(emitter.Event{Name: EventOpen})

	if len(subs) > 0 {
		if err := c.sendOn(conn, protocol.NamespaceSubscribe, subs); err != nil {
			c.emitError(err)
		}
	}

	go c.readLoop(conn, gen)
	go c.heartbeat(conn)

	c.events.Emit(emitter.Event{Name: EventReady, Payload: c.id})
	return nil
}

// Publish sends payload on namespace. Reserved namespaces are rejected
// without network activity. A transport failure is also emitted as
// EventError.
func (c *Client) Publish(namespace string, payload any) error {
	if IsReserved(namespace) {
		return fmt.Errorf("%w: %q", ErrReservedNamespace, namespace)
	}
	data, err := c.codec.Pack(namespace, payload)
	if err != nil {
		return fmt.Errorf("client: publish %q: %w", namespace, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Send(data); err != nil {
		err = fmt.Errorf("client: publish %q: %w", namespace, err)
		c.emitError(err)
		return err
	}
	return nil
}

// Subscribe adds patterns to the subscription set and, when connected,
// sends the newly added ones in one "_sub" frame.
func (c *Client) Subscribe(patterns ...string) error {
	for _, p := range patterns {
		if IsReserved(p) {
			return fmt.Errorf("%w: %q", ErrReservedNamespace, p)
		}
	}
	added, conn := c.addSubscriptions(patterns)
	if len(added) == 0 || conn == nil {
		return nil
	}
	return c.sendOn(conn, protocol.NamespaceSubscribe, added)
}

// Unsubscribe removes patterns from the subscription set and, when
// connected, sends the removed ones in one "_unsub" frame.
func (c *Client) Unsubscribe(patterns ...string) error {
	removed, conn := c.removeSubscriptions(patterns)
	if len(removed) == 0 || conn == nil {
		return nil
	}
	return c.sendOn(conn, protocol.NamespaceUnsubscribe, removed)
}

// Close closes the connection with a normal closure. The subscription set
// is kept for a later Connect.
func (c *Client) Close() error {
	c.mu.Lock()
	c.userClosed = true
	conn := c.conn
	stop := c.stop
	c.stop = nil
	if conn != nil {
		c.state = StateClosing
	} else {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn == nil {
		return nil
	}
	return conn.CloseWith(websocket.CloseNormalClosure, "")
}

func (c *Client) onListenerAdded(pattern string, first bool) {
	if !first || IsReserved(pattern) {
		return
	}
	added, conn := c.addSubscriptions([]string{pattern})
	if len(added) == 0 || conn == nil {
		return
	}
	if err := c.sendOn(conn, protocol.NamespaceSubscribe, pattern); err != nil {
		c.logger.Debug("subscribe failed", "pattern", pattern, "error", err)
	}
}

func (c *Client) onListenerRemoved(pattern string, last bool) {
	if !last || IsReserved(pattern) {
		return
	}
	removed, conn := c.removeSubscriptions([]string{pattern})
	if len(removed) == 0 || conn == nil {
		return
	}
	if err := c.sendOn(conn, protocol.NamespaceUnsubscribe, pattern); err != nil {
		c.logger.Debug("unsubscribe failed", "pattern", pattern, "error", err)
	}
}

// addSubscriptions returns the patterns that were not yet subscribed and
// the open connection, if any.
func (c *Client) addSubscriptions(patterns []string) ([]string, *wsconn.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var added []string
	for _, p := range patterns {
		if p == "" || slices.Contains(c.subscriptions, p) || slices.Contains(added, p) {
			continue
		}
		c.subscriptions = append(c.subscriptions, p)
		added = append(added, p)
	}
	return added, c.openConnLocked()
}

func (c *Client) removeSubscriptions(patterns []string) ([]string, *wsconn.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed []string
	c.subscriptions = slices.DeleteFunc(c.subscriptions, func(s string) bool {
		if slices.Contains(patterns, s) {
			removed = append(removed, s)
			return true
		}
		return false
	})
	return removed, c.openConnLocked()
}

func (c *Client) openConnLocked() *wsconn.Conn {
	if c.state != StateOpen {
		return nil
	}
	return c.conn
}

func (c *Client) sendOn(conn *wsconn.Conn, namespace string, payload any) error {
	data, err := c.codec.Pack(namespace, payload)
	if err != nil {
		return err
	}
	return conn.Send(data)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) emitError(err error) {
	c.logger.Warn("client error", "error", err)
	c.events.Emit(emitter.Event{Name: EventError, Err: err})
}
