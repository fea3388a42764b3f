package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/nsbus/internal/config"
	"github.com/vango-dev/nsbus/internal/httpapi"
	"github.com/vango-dev/nsbus/pkg/metrics"
	"github.com/vango-dev/nsbus/pkg/registry"
	"github.com/vango-dev/nsbus/pkg/server"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		address string
		path    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pub/sub server",
		Long: `Run the pub/sub server until SIGINT or SIGTERM.

Examples:
  nsbus serve
  nsbus serve --address :8080
  NSBUS_SNAPSHOT_BACKEND=s3 NSBUS_SNAPSHOT_BUCKET=b nsbus serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if path != "" {
				cfg.Server.Path = path
			}
			srv, err := buildServer(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			return srv.Run()
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&path, "path", "", "WebSocket path (default from config)")
	return cmd
}

// buildServer wires a server from cfg: metrics, registry, snapshot store
// and the HTTP routes around the WebSocket endpoint.
func buildServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(promReg),
		)
		gatherer = promReg
	}

	regCfg := cfg.RegistryConfig()
	regCfg.OnEvict = func(ids []string) {
		m.Evicted(len(ids))
	}
	reg := registry.New(regCfg, logger)

	snapshots, err := cfg.SnapshotStore(ctx)
	if err != nil {
		return nil, err
	}

	sc := cfg.ServerConfig()
	sc.Metrics = m
	sc.SnapshotStore = snapshots
	sc.Logger = logger

	srv := server.New(sc, reg)
	srv.SetHandler(httpapi.NewRouter(srv, httpapi.Options{
		Gatherer:    gatherer,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger,
	}))
	return srv, nil
}
