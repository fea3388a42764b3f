package client

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/nsbus/pkg/protocol"
)

// DefaultURL is the server address used when ClientConfig.URL is empty.
const DefaultURL = "ws://localhost:9500/ws"

// ClientConfig configures a Client.
type ClientConfig struct {
	// URL is the server WebSocket endpoint.
	// Default: DefaultURL.
	URL string

	// ID identifies the client and is sent as its credential, so the
	// server derives the same connection id on every reconnect.
	// Default: a random UUID.
	ID string

	// Codec packs and unpacks frames.
	// Default: protocol.DefaultCodec().
	Codec *protocol.Codec

	// Dialer opens the WebSocket connection.
	// Default: a copy of websocket.DefaultDialer using HandshakeTimeout.
	Dialer *websocket.Dialer

	// Header holds extra handshake headers. Authorization is always
	// replaced by the client credential.
	Header http.Header

	// HandshakeTimeout bounds each dial.
	// Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// ReadTimeout is how long the connection may stay silent, pongs
	// included. Zero disables the read deadline.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// HeartbeatInterval is the time between pings to the server.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// AutoReconnect redials with Backoff after an unexpected disconnect.
	// Default: false.
	AutoReconnect bool

	// Backoff controls reconnect delays.
	// Default: DefaultBackoffConfig().
	Backoff BackoffConfig

	// Logger is the base logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultClientConfig returns a ClientConfig with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		URL:               DefaultURL,
		Codec:             protocol.DefaultCodec(),
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		Backoff:           DefaultBackoffConfig(),
	}
}

func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig()
	if c.URL == "" {
		c.URL = defaults.URL
	}
	if c.Codec == nil {
		c.Codec = defaults.Codec
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = defaults.Backoff
	}
	if c.Dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = c.HandshakeTimeout
		c.Dialer = &d
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
