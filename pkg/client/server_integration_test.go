package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/nsbus/pkg/emitter"
	"github.com/vango-dev/nsbus/pkg/registry"
	"github.com/vango-dev/nsbus/pkg/server"
)

func newBus(t *testing.T) (*server.Server, string) {
	t.Helper()
	reg := registry.New(&registry.Config{}, testLogger())
	srv := server.New(&server.ServerConfig{Logger: testLogger()}, reg)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func waitSubscribed(t *testing.T, srv *server.Server, clientID string, n int) {
	t.Helper()
	id := registry.ResolveIdentity(clientID, true)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if subs, _ := srv.Registry().Subscriptions(id); len(subs) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client %s never reached %d subscriptions", clientID, n)
}

func TestServer_FanOut(t *testing.T) {
	srv, url := newBus(t)

	a := newTestClient(t, url, func(c *ClientConfig) { c.ID = "a" })
	b := newTestClient(t, url, func(c *ClientConfig) { c.ID = "b" })
	aGot := events(a, "toclient.*")
	bGot := events(b, "other")

	if err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitSubscribed(t, srv, "a", 3)
	waitSubscribed(t, srv, "b", 3)

	srv.Publish(context.Background(), "toclient.news", "hello")
	ev := nextEvent(t, aGot)
	if ev.Name != "toclient.news" || ev.Payload != "hello" {
		t.Errorf("a got %+v", ev)
	}
	select {
	case ev := <-bGot:
		t.Errorf("b got unexpected %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_ClientToServer(t *testing.T) {
	srv, url := newBus(t)
	got := make(chan emitter.Event, 1)
	srv.On("chat.message", func(ev emitter.Event) { got <- ev })

	c := newTestClient(t, url, nil)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Publish("chat.message", "hi"); err != nil {
		t.Fatal(err)
	}

	ev := nextEvent(t, got)
	if ev.Payload != "hi" || ev.ConnID != registry.ResolveIdentity(c.ID(), true) {
		t.Errorf("server got %+v", ev)
	}
}

func TestServer_ReconnectKeepsIdentity(t *testing.T) {
	srv, url := newBus(t)

	c := newTestClient(t, url, nil)
	connects := events(c, "connect")
	reconnects := events(c, "reconnect")
	closed := events(c, EventClose)
	c.On("news", func(emitter.Event) {})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := nextEvent(t, connects)
	waitSubscribed(t, srv, c.ID(), 3)

	c.Close()
	nextEvent(t, closed)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, reconnects)
	if ev.Payload != first.Payload {
		t.Errorf("reconnect id = %v, want %v", ev.Payload, first.Payload)
	}
	// Subscriptions were reset on the server and re-asserted on open.
	waitSubscribed(t, srv, c.ID(), 3)
	if srv.Registry().Len() != 1 {
		t.Errorf("registry Len() = %d, want 1", srv.Registry().Len())
	}
}

func TestServer_ManualReconnect(t *testing.T) {
	_, url := newBus(t)
	c := newTestClient(t, url, nil)
	reconnects := events(c, "reconnect")
	closed := events(c, EventClose)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, reconnects)
	select {
	case <-closed:
		t.Error("Reconnect emitted close for the replaced connection")
	case <-time.After(100 * time.Millisecond):
	}
	if c.State() != StateOpen {
		t.Errorf("State() = %s, want open", c.State())
	}
}

func TestServer_AutoReconnect(t *testing.T) {
	srv, url := newBus(t)
	c := newTestClient(t, url, func(cfg *ClientConfig) {
		cfg.AutoReconnect = true
		cfg.Backoff = BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond}
	})
	reconnects := events(c, "reconnect")
	errs := events(c, EventError)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := registry.ResolveIdentity(c.ID(), true)
	tr, ok := srv.Registry().Transport(id)
	if !ok {
		t.Fatal("no server transport for client")
	}
	tr.Close()

	if ev := nextEvent(t, errs); ev.Err == nil {
		t.Error("error event without Err")
	}
	if ev := nextEvent(t, reconnects); ev.Payload != id {
		t.Errorf("reconnect payload = %v, want %s", ev.Payload, id)
	}
}
