package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iHeyTang/mcp-uni/pkg/config"
	"github.com/iHeyTang/mcp-uni/pkg/gateway"
	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
	"github.com/iHeyTang/mcp-uni/pkg/telemetry"
)

const teardownTimeout = 10 * time.Second

var version = "0.1.0"

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewPrometheusMetrics(promRegistry)

	progress := gateway.NewProgressRelay(logger)
	regOpts := cfg.RegistryOptions()
	regOpts.Dialer = &mcphost.SDKDialer{
		ClientVersion: version,
		ClientOptions: &mcp.ClientOptions{ProgressNotificationHandler: progress.HandleProgress},
	}
	regOpts.Logger = logger
	regOpts.Metrics = metrics
	reg := mcphost.NewRegistry(regOpts)
	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		reg.TeardownAll(teardownCtx)
	}()

	connectConfigured(ctx, reg, cfg, logger)

	gw, err := gateway.New(reg, &gateway.Options{
		Addr:            fmt.Sprintf(":%d", cfg.Port),
		Path:            cfg.StreamPath,
		ExposeOnConnect: cfg.ExposeOnConnect,
		Implementation:  &mcp.Implementation{Name: "mcp-uni", Version: version},
		Logger:          logger,
		Metrics:         metrics,
		Progress:        progress,
	})
	if err != nil {
		return err
	}

	logger.Info(fmt.Sprintf("Starting MCP-UNI server on http://localhost:%d", cfg.Port))
	logger.Info(fmt.Sprintf("Stream endpoint: http://localhost:%d%s", cfg.Port, cfg.StreamPath))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return gw.ListenAndServe(groupCtx)
	})
	if cfg.MetricsAddr != "" {
		group.Go(func() error {
			return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
				Addr:     cfg.MetricsAddr,
				Registry: promRegistry,
				Backends: reg.Names,
			}, logger)
		})
	}
	return group.Wait()
}

// connectConfigured connects the configured servers one by one, in name
// order. A server that cannot be reached is logged and skipped.
func connectConfigured(ctx context.Context, reg *mcphost.Registry, cfg *config.Config, logger *zap.Logger) {
	for _, name := range cfg.ServerNames() {
		if ctx.Err() != nil {
			return
		}
		d, err := cfg.Servers[name].Descriptor()
		if err != nil {
			logger.Error("invalid backend transport", zap.String("backend", name), zap.Error(err))
			continue
		}
		if _, err := reg.Connect(ctx, name, d); err != nil {
			logger.Error("backend not connected", zap.String("backend", name), zap.Error(err))
			continue
		}
		logger.Info("backend connected", zap.String("backend", name))
	}
}
