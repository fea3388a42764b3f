package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vango-dev/nsbus/pkg/metrics"
	"github.com/vango-dev/nsbus/pkg/protocol"
	"github.com/vango-dev/nsbus/pkg/store"
)

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":9500" or "localhost:9500").
	// Default: ":9500".
	Address string

	// Path is the URL path that upgrades to WebSocket.
	// Default: "/ws".
	Path string

	// WebSocket buffer sizes

	// ReadBufferSize is the WebSocket read buffer size.
	// Default: 4096.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	// Default: 4096.
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// EnableCompression negotiates per-message compression.
	// Default: false.
	EnableCompression bool

	// Timeouts

	// ReadTimeout is how long a connection may stay silent, pongs included.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds each frame write.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between heartbeat pings.
	// Must be shorter than ReadTimeout.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// ReadHeaderTimeout is passed to http.Server by Run.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// Limits

	// MaxMessageSize is the maximum size of an incoming frame.
	// Default: 1MB.
	MaxMessageSize int64

	// Collaborators

	// Codec packs and unpacks frames.
	// Default: protocol.DefaultCodec().
	Codec *protocol.Codec

	// Metrics records server activity. Nil disables metrics.
	Metrics *metrics.Metrics

	// SnapshotStore, when set, restores the registry on Run and saves it on
	// Shutdown.
	SnapshotStore store.SnapshotStore

	// SnapshotKey is the key the registry snapshot is stored under.
	// Default: "registry".
	SnapshotKey string

	// TracerName names the OpenTelemetry tracer.
	// Default: "nsbus".
	TracerName string

	// Logger is the base logger.
	// Default: slog.Default().
	Logger *slog.Logger
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:           ":9500",
		Path:              "/ws",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		CheckOrigin:       SameOriginCheck,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		MaxMessageSize:    1 << 20,
		Codec:             protocol.DefaultCodec(),
		SnapshotKey:       "registry",
		TracerName:        "nsbus",
	}
}

// applyDefaults fills unset fields from DefaultServerConfig.
func (c *ServerConfig) applyDefaults() {
	defaults := DefaultServerConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.Path == "" {
		c.Path = defaults.Path
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.Codec == nil {
		c.Codec = defaults.Codec
	}
	if c.SnapshotKey == "" {
		c.SnapshotKey = defaults.SnapshotKey
	}
	if c.TracerName == "" {
		c.TracerName = defaults.TracerName
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ValidateConfig reports every invalid setting.
func (c *ServerConfig) ValidateConfig() error {
	var errs []error
	if !strings.HasPrefix(c.Path, "/") {
		errs = append(errs, fmt.Errorf("path %q must start with /", c.Path))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.HeartbeatInterval > 0 && c.ReadTimeout > 0 && c.HeartbeatInterval >= c.ReadTimeout {
		errs = append(errs, fmt.Errorf("heartbeat interval %s must be shorter than read timeout %s",
			c.HeartbeatInterval, c.ReadTimeout))
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, errors.New("max message size must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// SameOriginCheck accepts requests without an Origin header (non-browser
// clients) and browser requests whose Origin host matches the request host.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := r.Host
	if host == "" {
		return false
	}
	return originURL.Host == host
}

// AllowAllOrigins accepts every request.
func AllowAllOrigins(*http.Request) bool {
	return true
}
