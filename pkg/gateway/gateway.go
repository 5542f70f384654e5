package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"github.com/yosida95/uritemplate/v3"
	"go.uber.org/zap"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
)

// Gateway exposes a Streamable MCP server that fronts every backend held by a
// mcphost.Registry under a single HTTP endpoint.
type Gateway struct {
	registry *mcphost.Registry
	opts     Options
	logger   *zap.Logger
	metrics  Metrics

	streamHandler *mcp.StreamableHTTPHandler
	mux           *http.ServeMux
	httpHandler   http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// New builds a Gateway over reg. Backends already in reg are exposed to every
// frontend session opened afterwards.
func New(reg *mcphost.Registry, opts *Options) (*Gateway, error) {
	if reg == nil {
		return nil, errors.New("gateway: registry is required")
	}
	options := opts.withDefaults()
	g := &Gateway{
		registry: reg,
		opts:     options,
		logger:   options.Logger.Named("gateway"),
		metrics:  options.Metrics,
	}
	g.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.NewServer()
	}, &options.Streamable)
	g.mux, g.httpHandler = g.mountHandler()
	return g, nil
}

// Options returns the effective options.
func (g *Gateway) Options() Options {
	return g.opts
}

// Registry returns the registry the gateway routes through.
func (g *Gateway) Registry() *mcphost.Registry {
	return g.registry
}

// NewServer builds a frontend server carrying the management tools plus one
// forwarding handler per distinct capability currently in the registry.
// The HTTP handler calls it once per caller session.
func (g *Gateway) NewServer() *mcp.Server {
	server := mcp.NewServer(g.opts.Implementation, &mcp.ServerOptions{
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})
	fe := &frontend{
		gw:       g,
		server:   server,
		features: newFeatureIndex(managementToolNames...),
	}
	fe.addManagementTools()
	for _, conn := range g.registry.List() {
		fe.expose(conn)
	}
	return server
}

// Handler exposes the HTTP handler that serves the Streamable endpoint.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ServeMux returns the mux the Streamable handler is mounted on, so callers
// can add routes next to it.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		serv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("gateway: server already running on %s", serv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			g.logger.Warn("http shutdown", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

func (g *Gateway) mountHandler() (*http.ServeMux, http.Handler) {
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux := http.NewServeMux()
	mux.Handle(path, g.streamHandler)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", g.streamHandler)
	}
	return mux, cors.New(*g.opts.CORS).Handler(mux)
}

// frontend is the per-session state behind one mcp.Server.
type frontend struct {
	gw       *Gateway
	server   *mcp.Server
	features *featureIndex
}

// expose registers forwarding handlers for the capabilities of conn that the
// frontend does not serve yet.
func (fe *frontend) expose(conn *mcphost.Connection) {
	logger := fe.gw.logger.With(zap.String("backend", conn.Name))
	set := fe.features.Claim(conn.Name, conn.Capabilities)
	for _, name := range set.Shadowed {
		logger.Warn("backend tool hidden by management tool", zap.String("tool", name))
	}
	for _, tool := range set.Tools {
		fe.server.AddTool(tool, fe.forwardTool(tool.Name))
	}
	for _, prompt := range set.Prompts {
		fe.server.AddPrompt(prompt, fe.forwardPrompt(prompt.Name))
	}
	for _, resource := range set.Resources {
		if !validResourceURI(resource.URI) {
			logger.Warn("skip resource with invalid uri", zap.String("uri", resource.URI))
			continue
		}
		fe.server.AddResource(resource, fe.forwardResource(resource.URI))
	}
	for _, tpl := range set.ResourceTemplates {
		if _, err := uritemplate.New(tpl.URITemplate); err != nil {
			logger.Warn("skip resource template", zap.String("uri_template", tpl.URITemplate), zap.Error(err))
			continue
		}
		fe.server.AddResourceTemplate(tpl, fe.forwardResourceTemplate(tpl.URITemplate))
	}
	if !set.empty() {
		logger.Debug("exposed backend capabilities",
			zap.Int("tools", len(set.Tools)),
			zap.Int("prompts", len(set.Prompts)),
			zap.Int("resources", len(set.Resources)),
			zap.Int("resource_templates", len(set.ResourceTemplates)),
		)
	}
}

func validResourceURI(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme != ""
}
