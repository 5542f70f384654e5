package gateway

import (
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Metrics receives forwarding events. telemetry.PrometheusMetrics satisfies it.
type Metrics interface {
	ObserveForward(kind string, duration time.Duration, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveForward(string, time.Duration, error) {}

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the gateway's MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Addr controls the listen address used by ListenAndServe. Defaults to ":7200".
	Addr string
	// Path mounts the Streamable handler. Defaults to "/stream".
	Path string
	// ExposeOnConnect registers forwarding handlers for a backend's
	// capabilities on the frontend server that ran connect_backend, instead of
	// waiting for the caller to open a new session.
	ExposeOnConnect bool
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// CORS overrides the permissive default policy.
	CORS *cors.Options
	// Logger receives structured diagnostics.
	Logger  *zap.Logger
	Metrics Metrics
	// Progress relays backend progress notifications of forwarded tool calls.
	// Nil drops them.
	Progress *ProgressRelay
	// ShutdownTimeout bounds the graceful HTTP shutdown in ListenAndServe.
	ShutdownTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "mcp-uni",
			Version: "0.1.0",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":7200"
	}
	if opts.Path == "" {
		opts.Path = "/stream"
	}
	if opts.CORS == nil {
		opts.CORS = &cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
		}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return opts
}
