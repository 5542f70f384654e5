package gateway

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const progressRouteGrace = 250 * time.Millisecond

type progressSink interface {
	NotifyProgress(context.Context, *mcp.ProgressNotificationParams) error
}

type progressRoute struct {
	sink        progressSink
	callerToken any
}

// ProgressRelay carries progress notifications from backends back to the
// caller session that asked for them. A forwarded call carries a token issued
// by the relay, so two callers using the same token on one backend stay
// apart.
//
// Install HandleProgress as the ProgressNotificationHandler of the clients
// that dial backends, and pass the relay in Options.Progress.
type ProgressRelay struct {
	counter atomic.Uint64

	mu     sync.Mutex
	routes map[string]progressRoute

	grace  time.Duration
	logger *zap.Logger
}

func NewProgressRelay(logger *zap.Logger) *ProgressRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressRelay{
		routes: make(map[string]progressRoute),
		grace:  progressRouteGrace,
		logger: logger.Named("progress"),
	}
}

// track registers a route and returns the token to send to backend. done
// drops the route after a short grace period; notifications can trail the
// call result.
func (r *ProgressRelay) track(backend string, sink progressSink, callerToken any) (token string, done func()) {
	token = fmt.Sprintf("mcp-uni/%s/%d", backend, r.counter.Add(1))
	r.mu.Lock()
	r.routes[token] = progressRoute{sink: sink, callerToken: callerToken}
	r.mu.Unlock()
	return token, func() {
		if r.grace <= 0 {
			r.drop(token)
			return
		}
		time.AfterFunc(r.grace, func() { r.drop(token) })
	}
}

func (r *ProgressRelay) drop(token string) {
	r.mu.Lock()
	delete(r.routes, token)
	r.mu.Unlock()
}

func (r *ProgressRelay) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

// HandleProgress forwards a backend progress notification to its caller,
// restoring the caller's own token.
func (r *ProgressRelay) HandleProgress(ctx context.Context, req *mcp.ProgressNotificationClientRequest) {
	if req == nil || req.Params == nil {
		return
	}
	token, ok := req.Params.ProgressToken.(string)
	if !ok {
		return
	}
	r.mu.Lock()
	route, ok := r.routes[token]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("progress for unknown token", zap.String("token", token))
		return
	}
	params := *req.Params
	params.ProgressToken = route.callerToken
	if err := route.sink.NotifyProgress(ctx, &params); err != nil {
		r.logger.Warn("forward progress failed", zap.String("token", token), zap.Error(err))
	}
}

// callerProgressToken returns the progress token of a frontend tool call, or
// nil when the caller did not ask for progress.
func callerProgressToken(req *mcp.CallToolRequest) any {
	if req == nil || req.Params == nil || req.Params.Meta == nil {
		return nil
	}
	return req.Params.Meta["progressToken"]
}
