// Package server accepts WebSocket connections and routes namespaced frames
// between them.
//
// # Connections
//
// Every upgraded connection is identified by a stable id derived from the
// credential in its Authorization: Basic header (see registry.ResolveIdentity).
// A client reconnecting with the same credential reuses its registry entry:
// the server emits EventReconnect and sends a "reconnect" frame instead of
// EventConnection and a "connect" frame. Both frames carry the id.
//
// Each connection runs two goroutines:
//   - readLoop: decodes frames, applies "_sub"/"_unsub" and emits every other
//     namespace as a local event carrying the connection id
//   - heartbeat: pings the client so pongs keep the read deadline fresh
//
// # Publishing
//
// Publish packs a frame once and sends it to every open connection holding
// at least one matching subscription pattern. Patterns use the "*" and "**"
// wildcards of package pattern. Send failures are reported as EventError and
// never stop delivery to the remaining connections.
//
// # Example Usage
//
//	reg := registry.New(nil, nil)
//	srv := server.New(&server.ServerConfig{Address: ":9500"}, reg)
//
//	srv.On("chat.*", func(ev emitter.Event) {
//	    srv.Publish(context.Background(), "toclient.chat", ev.Payload)
//	})
//
//	srv.Run()
//
// # Thread Safety
//
// Server methods are safe for concurrent use. Event handlers run on the
// reading goroutine of the originating connection, so frames from one
// connection are handled in order while different connections proceed in
// parallel.
package server
