package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iHeyTang/mcp-uni/pkg/config"
)

type rootOptions struct {
	configPath      string
	port            int
	streamPath      string
	metricsAddr     string
	logLevel        string
	exposeOnConnect bool
}

func main() {
	level := zap.NewAtomicLevel()
	logger, err := newLogger(level)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger, level)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newLogger(level zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}

func newRootCmd(logger *zap.Logger, level zap.AtomicLevel) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "mcp-uni",
		Short:        "Serve several MCP servers behind one Streamable HTTP endpoint",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd, logger, level)
			if err != nil {
				return err
			}
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()
			return serve(ctx, cfg, logger)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a JSON or YAML config file with mcpServers")
	flags.IntVarP(&opts.port, "port", "p", config.DefaultPort, "port to listen on")
	flags.StringVarP(&opts.streamPath, "stream", "s", config.DefaultStreamPath, "path of the Streamable HTTP endpoint")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "address for /metrics and /healthz (disabled when empty)")
	flags.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
	flags.BoolVar(&opts.exposeOnConnect, "expose-on-connect", false, "expose capabilities of backends connected at runtime to open sessions")

	root.AddCommand(newValidateCmd(logger, level, opts))
	return root
}

func newValidateCmd(logger *zap.Logger, level zap.AtomicLevel, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration without connecting any backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd, logger, level)
			if err != nil {
				return err
			}
			logger.Info("configuration is valid",
				zap.Int("port", cfg.Port),
				zap.String("streamPath", cfg.StreamPath),
				zap.Strings("servers", cfg.ServerNames()),
			)
			return nil
		},
	}
}

// load reads the config file, lets explicitly set flags win over it and
// validates the result.
func (o *rootOptions) load(cmd *cobra.Command, logger *zap.Logger, level zap.AtomicLevel) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("stream") {
		cfg.StreamPath = o.streamPath
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("expose-on-connect") {
		cfg.ExposeOnConnect = o.exposeOnConnect
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
