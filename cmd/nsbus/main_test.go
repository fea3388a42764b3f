package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/nsbus/internal/config"
	"github.com/vango-dev/nsbus/pkg/client"
	"github.com/vango-dev/nsbus/pkg/emitter"
)

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
}

func TestParsePayload(t *testing.T) {
	if v := parsePayload(`{"a":1}`); v.(map[string]any)["a"] != float64(1) {
		t.Errorf("object payload = %#v", v)
	}
	if v := parsePayload("hello world"); v != "hello world" {
		t.Errorf("string payload = %#v", v)
	}
	if v := parsePayload("42"); v != float64(42) {
		t.Errorf("number payload = %#v", v)
	}
}

func TestJSONSafe(t *testing.T) {
	in := map[any]any{1: []any{map[any]any{"k": []byte("v")}}}
	out := jsonSafe(in).(map[string]any)
	inner := out["1"].([]any)[0].(map[string]any)
	if inner["k"] != "v" {
		t.Errorf("jsonSafe = %#v", out)
	}
}

func TestEventPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newEventPrinter(&out)
	p.print(emitter.Event{Name: "chat.general", Payload: map[string]any{"text": "hi"}})

	want := `{"namespace":"chat.general","payload":{"text":"hi"}}`
	if got := strings.TrimSpace(out.String()); got != want {
		t.Errorf("printed %s, want %s", got, want)
	}
}

func TestBuildServerRoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Snapshot.Backend = config.BackendMemory
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := buildServer(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildServer() error = %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Server.Path
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := client.New(&client.ClientConfig{URL: url, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan emitter.Event, 1)
	sub.On("chat.*", func(ev emitter.Event) { got <- ev })
	if err := sub.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sub.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		subs, _ := srv.Registry().Subscriptions(sub.ID())
		if containsString(subs, "chat.*") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := srv.Publish(ctx, "chat.general", "hi"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	select {
	case ev := <-got:
		if ev.Name != "chat.general" || ev.Payload != "hi" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
