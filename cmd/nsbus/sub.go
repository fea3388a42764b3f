package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/nsbus/pkg/client"
	"github.com/vango-dev/nsbus/pkg/emitter"
)

type printedEvent struct {
	Namespace string `json:"namespace"`
	Payload   any    `json:"payload"`
}

func subCmd(flags *globalFlags) *cobra.Command {
	var (
		cf        clientFlags
		reconnect bool
	)

	cmd := &cobra.Command{
		Use:   "sub <pattern>...",
		Short: "Subscribe and print events as JSON lines",
		Long: `Subscribe to one or more patterns and print every matching event
as a JSON line until interrupted.

Examples:
  nsbus sub 'chat.*'
  nsbus sub 'jobs.**' alerts --reconnect`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(flags); err != nil {
				return err
			}
			cfg := cf.config(slog.Default())
			cfg.AutoReconnect = reconnect

			c, err := client.New(cfg)
			if err != nil {
				return err
			}
			printer := newEventPrinter(cmd.OutOrStdout())
			for _, p := range args {
				c.On(p, printer.print)
			}

			done := make(chan struct{})
			if !reconnect {
				c.Once(client.EventClose, func(emitter.Event) { close(done) })
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cf.timeout)
			err = c.Connect(ctx)
			cancel()
			if err != nil {
				return err
			}
			defer c.Close()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case <-sig:
			case <-done:
				return fmt.Errorf("connection closed")
			}
			return nil
		},
	}

	cf.register(cmd)
	cmd.Flags().BoolVarP(&reconnect, "reconnect", "r", false, "Reconnect with backoff when the connection drops")
	return cmd
}

type eventPrinter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newEventPrinter(w io.Writer) *eventPrinter {
	return &eventPrinter{enc: json.NewEncoder(w)}
}

func (p *eventPrinter) print(ev emitter.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enc.Encode(printedEvent{Namespace: ev.Name, Payload: jsonSafe(ev.Payload)}); err != nil {
		slog.Warn("print event failed", "namespace", ev.Name, "error", err)
	}
}

// jsonSafe converts msgpack-decoded maps with non-string keys into
// string-keyed maps.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonSafe(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonSafe(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonSafe(val)
		}
		return out
	case []byte:
		return string(t)
	default:
		return v
	}
}
