package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/nsbus/internal/wsconn"
	"github.com/vango-dev/nsbus/pkg/emitter"
	"github.com/vango-dev/nsbus/pkg/metrics"
	"github.com/vango-dev/nsbus/pkg/protocol"
	"github.com/vango-dev/nsbus/pkg/registry"
)

// Server lifecycle events. Every other event name is a namespace received
// from a client.
const (
	// EventConnection fires when a new identity connects. Payload is the id.
	EventConnection = "connection"

	// EventReconnect fires when a known identity connects again. Payload is
	// the id.
	EventReconnect = "reconnect"

	// EventClose fires when a connection's current transport closes.
	// Payload is the id.
	EventClose = "close"

	// EventError fires for transport errors. Err is a *ConnError.
	EventError = "error"
)

// Server is the HTTP/WebSocket pub/sub server.
type Server struct {
	config   *ServerConfig
	registry *registry.Registry
	events   *emitter.Emitter
	codec    *protocol.Codec
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// handler serves every non-WebSocket request.
	handler http.Handler

	httpServer *http.Server

	// conns tracks connection goroutines for shutdown.
	conns sync.WaitGroup

	mu      sync.Mutex
	closing bool

	logger *slog.Logger
}

// New creates a Server around reg. A nil reg gets a registry with default
// settings.
func New(config *ServerConfig, reg *registry.Registry) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		config = config.Clone()
	}
	config.applyDefaults()

	logger := config.Logger.With("component", "server")
	if err := config.ValidateConfig(); err != nil {
		logger.Error("config validation failed", "error", err)
	}

	if reg == nil {
		reg = registry.New(nil, config.Logger)
	}

	return &Server{
		config:   config,
		registry: reg,
		events:   emitter.New(emitter.WithLogger(logger)),
		codec:    config.Codec,
		metrics:  config.Metrics,
		tracer:   otel.Tracer(config.TracerName),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			CheckOrigin:       config.CheckOrigin,
			EnableCompression: config.EnableCompression,
		},
		logger: logger,
	}
}

// On registers h for events matching pattern.
func (s *Server) On(pattern string, h emitter.Handler) emitter.ListenerID {
	return s.events.On(pattern, h)
}

// Once registers h for the next event matching pattern.
func (s *Server) Once(pattern string, h emitter.Handler) emitter.ListenerID {
	return s.events.Once(pattern, h)
}

// Off removes a handler registered with On or Once.
func (s *Server) Off(pattern string, id emitter.ListenerID) bool {
	return s.events.Off(pattern, id)
}

// SetHandler sets the handler for non-WebSocket requests.
func (s *Server) SetHandler(h http.Handler) {
	s.handler = h
}

// Handler returns the WebSocket upgrade handler for mounting in a router.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.HandleWebSocket)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == s.config.Path {
		s.HandleWebSocket(w, r)
		return
	}
	if s.handler != nil {
		s.handler.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

// HandleWebSocket upgrades the request and runs the connection until it
// closes. It returns once the connection goroutines are started.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "nsbus.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	if s.isClosing() {
		span.SetStatus(codes.Error, ErrServerClosed.Error())
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(s.config.MaxMessageSize)

	credential, ok := s.credential(r)
	id := registry.ResolveIdentity(credential, ok)
	conn := wsconn.New(ws, s.config.WriteTimeout)

	isNew := s.registry.Upsert(id, conn)
	s.metrics.ConnectionOpened(isNew)

	span.SetAttributes(
		attribute.String("nsbus.conn_id", id),
		attribute.Bool("nsbus.reconnect", !isNew),
		attribute.Bool("nsbus.credential", ok),
	)

	event, namespace := EventConnection, protocol.NamespaceConnect
	if !isNew {
		event, namespace = EventReconnect, protocol.NamespaceReconnect
	}

	c := newConnection(s, id, conn)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.CloseWith(websocket.CloseGoingAway, "server shutdown")
		s.registry.Release(id, conn)
		s.metrics.ConnectionClosed()
		return
	}
	s.conns.Add(2)
	s.mu.Unlock()

	s.logger.Info("connection open", "conn_id", id, "reconnect", !isNew)

	s.events.Emit(emitter.Event{Name: event, Payload: id, ConnID: id})
	if err := c.send(namespace, id); err != nil {
		span.RecordError(err)
		s.emitError(id, "handshake", err)
	}
	span.SetStatus(codes.Ok, "")

	go c.readLoop()
	go c.heartbeat()
}

// credential extracts the opaque credential from the Authorization: Basic
// header. The whole decoded text is the credential; it is never split into
// user and password. Clients that dial a URL with userinfo send it in this
// header.
func (s *Server) credential(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, found := strings.Cut(h, " ")
		if found && strings.EqualFold(scheme, "Basic") {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
			if err == nil {
				return string(decoded), true
			}
			s.logger.Debug("ignoring authorization header",
				"error", fmt.Errorf("%w: %v", ErrInvalidCredential, err))
		}
	}
	return "", false
}

func (s *Server) emitError(id, op string, err error) {
	cerr := NewConnError(id, op, err)
	s.logger.Warn("connection error", "conn_id", id, "op", op, "error", err)
	s.events.Emit(emitter.Event{Name: EventError, Payload: id, ConnID: id, Err: cerr})
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Restore loads the registry snapshot from the configured store. It is a
// no-op without a store.
func (s *Server) Restore(ctx context.Context) error {
	if s.config.SnapshotStore == nil {
		return nil
	}
	data, err := s.config.SnapshotStore.Load(ctx, s.config.SnapshotKey)
	if err != nil {
		return fmt.Errorf("server: load snapshot: %w", err)
	}
	n, err := s.registry.Restore(data)
	if err != nil {
		return fmt.Errorf("server: restore snapshot: %w", err)
	}
	s.logger.Info("snapshot restored", "entries", n)
	return nil
}

func (s *Server) saveSnapshot(ctx context.Context) error {
	if s.config.SnapshotStore == nil {
		return nil
	}
	data, err := s.registry.Snapshot()
	if err != nil {
		return err
	}
	if err := s.config.SnapshotStore.Save(ctx, s.config.SnapshotKey, data); err != nil {
		return fmt.Errorf("server: save snapshot: %w", err)
	}
	s.logger.Info("snapshot saved", "bytes", len(data))
	return nil
}

// Run restores the snapshot, starts the server and blocks until SIGINT or
// SIGTERM, then shuts down gracefully.
func (s *Server) Run() error {
	if err := s.config.ValidateConfig(); err != nil {
		return err
	}
	if err := s.Restore(context.Background()); err != nil {
		s.logger.Warn("snapshot restore failed", "error", err)
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", s.config.Address, "path", s.config.Path)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections, closes every open connection with
// a going-away close frame, waits for connection goroutines, saves the
// registry snapshot and stops the registry.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	httpServer := s.httpServer
	s.mu.Unlock()

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			errs = append(errs, err)
		}
	}

	closed := 0
	s.registry.ForEachOpen(func(c registry.OpenConn) {
		if wc, ok := c.Transport.(*wsconn.Conn); ok {
			_ = wc.CloseWith(websocket.CloseGoingAway, "server shutdown")
		} else {
			_ = c.Transport.Close()
		}
		closed++
	})

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("timed out waiting for connections", "error", ctx.Err())
		errs = append(errs, ctx.Err())
	}

	if err := s.saveSnapshot(ctx); err != nil {
		s.logger.Error("snapshot save failed", "error", err)
		errs = append(errs, err)
	}
	if err := s.registry.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("server shutdown complete", "closed_connections", closed)
	return errors.Join(errs...)
}

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Config returns the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}
