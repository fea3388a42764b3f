package server

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/nsbus/pkg/emitter"
	"github.com/vango-dev/nsbus/pkg/protocol"
	"github.com/vango-dev/nsbus/pkg/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, config *ServerConfig) (*Server, *httptest.Server) {
	t.Helper()
	if config == nil {
		config = &ServerConfig{}
	}
	if config.Logger == nil {
		config.Logger = testLogger()
	}
	reg := registry.New(&registry.Config{}, config.Logger)
	srv := New(config, reg)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(t *testing.T, baseURL, path string) string {
	t.Helper()
	if !strings.HasPrefix(baseURL, "http") {
		t.Fatalf("unexpected base URL: %q", baseURL)
	}
	return "ws" + strings.TrimPrefix(baseURL, "http") + path
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func basicAuth(credential string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credential)))
	return h
}

func writeFrame(t *testing.T, conn *websocket.Conn, namespace string, payload any) {
	t.Helper()
	data, err := protocol.Pack(namespace, payload)
	if err != nil {
		t.Fatalf("Pack(%q) failed: %v", namespace, err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("write frame failed: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame failed: %v", err)
	}
	msg, ok := protocol.Unpack(data)
	if !ok {
		t.Fatalf("Unpack(%x) failed", data)
	}
	return msg
}

// expectNoFrame fails if a frame arrives within d. The connection is not
// usable for reads afterwards.
func expectNoFrame(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(d))
	if _, data, err := conn.ReadMessage(); err == nil {
		msg, _ := protocol.Unpack(data)
		t.Fatalf("unexpected frame %q", msg.Namespace)
	}
}

// connect dials and consumes the handshake frame, returning the id.
func connect(t *testing.T, ts *httptest.Server, header http.Header) (*websocket.Conn, string, string) {
	t.Helper()
	conn := dialWS(t, wsURL(t, ts.URL, "/ws"), header)
	msg := readFrame(t, conn)
	id, ok := msg.Payload.(string)
	if !ok {
		t.Fatalf("handshake payload = %T, want string", msg.Payload)
	}
	return conn, msg.Namespace, id
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func collect(srv *Server, pattern string) <-chan emitter.Event {
	ch := make(chan emitter.Event, 16)
	srv.On(pattern, func(ev emitter.Event) { ch <- ev })
	return ch
}

func nextEvent(t *testing.T, ch <-chan emitter.Event) emitter.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return emitter.Event{}
	}
}
