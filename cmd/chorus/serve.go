package main

import (
	"github.com/fwojciec/chorus"
	chorushttp "github.com/fwojciec/chorus/http"
	chorusprom "github.com/fwojciec/chorus/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fan-out server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			return runServe(cmd, a.cfg, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg chorus.Config, server chorus.ServerConfig) error {
	log, err := newLogger(cfg.Logging, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	routes, err := buildRoutes(ctx, cfg.Backends, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := chorusprom.NewCollector("chorus", reg)

	srv := chorushttp.NewServer(routes,
		chorushttp.WithKeepalive(server.Keepalive),
		chorushttp.WithMaxDuration(server.MaxDuration),
		chorushttp.WithLogger(log),
		chorushttp.WithBackendObserver(metrics),
		chorushttp.WithMetrics(reg),
	)
	return srv.ListenAndServe(ctx, server.Addr)
}
