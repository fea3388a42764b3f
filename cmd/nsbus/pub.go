package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/nsbus/pkg/client"
)

type clientFlags struct {
	url     string
	id      string
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.url, "url", "u", client.DefaultURL, "Server WebSocket URL")
	cmd.Flags().StringVar(&f.id, "id", "", "Client identity (default random)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Connect timeout")
}

func (f *clientFlags) config(logger *slog.Logger) *client.ClientConfig {
	cfg := client.DefaultClientConfig()
	cfg.URL = f.url
	cfg.ID = f.id
	cfg.HandshakeTimeout = f.timeout
	cfg.Logger = logger
	return cfg
}

func pubCmd(flags *globalFlags) *cobra.Command {
	var cf clientFlags

	cmd := &cobra.Command{
		Use:   "pub <namespace> [payload]",
		Short: "Publish one event to the server",
		Long: `Publish one event to the server and exit.

The payload is parsed as JSON when possible and sent as a string
otherwise. Without a payload the event carries nil.

Examples:
  nsbus pub chat.general '{"text":"hi"}'
  nsbus pub jobs.done 42 --url ws://bus:9500/ws`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(flags); err != nil {
				return err
			}
			var payload any
			if len(args) == 2 {
				payload = parsePayload(args[1])
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cf.timeout)
			defer cancel()

			c, err := client.Dial(ctx, cf.config(slog.Default()))
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Publish(args[0], payload); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s as %s\n", args[0], c.ID())
			return nil
		},
	}

	cf.register(cmd)
	return cmd
}

func parsePayload(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
