package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/ssargent/litetx/pkg/api"
	"github.com/ssargent/litetx/pkg/metrics"
)

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Long: `Start the HTTP endpoint that lists, streams and verifies stored LTX files.

File routes require the X-API-Key header when server.api_key is set.
Prometheus metrics are served at /metrics.

Examples:
  litetx serve
  litetx serve --port 9400 --bind 0.0.0.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.APIKey, _ = cmd.Flags().GetString("api-key")
			}
			if cfg.APIKey == "" {
				a.log.Warn("no api key configured; file routes are unauthenticated")
			}

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.NewMetrics(registry)

			st, err := a.openStore(m)
			if err != nil {
				return err
			}

			server := api.NewServer(st, api.ServerConfig{
				Bind:        cfg.Bind,
				Port:        cfg.Port,
				APIKey:      cfg.APIKey,
				CORSOrigins: cfg.CORSOrigins,
			}, m, registry, a.log)

			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.StartServer(ctx, server)
		},
	}

	serveCmd.Flags().IntP("port", "p", 9300, "Port to listen on (default from config)")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind to (default from config)")
	serveCmd.Flags().String("api-key", "", "API key for file routes (default from config)")
	return serveCmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
