package mcphost

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2500 * time.Millisecond
	DefaultOpenTimeout = 30 * time.Second
)

// Metrics receives registry events. The telemetry package provides a
// Prometheus implementation.
type Metrics interface {
	ObserveConnectAttempt(backend string, err error)
	SetConnectedBackends(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveConnectAttempt(string, error) {}
func (nopMetrics) SetConnectedBackends(int)            {}

// RegistryOptions configures a Registry. Zero values select the defaults.
type RegistryOptions struct {
	// Dialer opens backend sessions. Defaults to an SDKDialer.
	Dialer Dialer
	// MaxAttempts bounds connect attempts per Connect call.
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// OpenTimeout bounds the session handshake of a single attempt.
	OpenTimeout time.Duration
	Logger      *zap.Logger
	Metrics     Metrics
}

func (o *RegistryOptions) withDefaults() RegistryOptions {
	if o == nil {
		o = &RegistryOptions{}
	}
	opts := *o
	if opts.Dialer == nil {
		opts.Dialer = &SDKDialer{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	return opts
}

// Connection is a registered backend: its live session and the capabilities
// it listed when it connected.
type Connection struct {
	Name         string
	Descriptor   TransportDescriptor
	Capabilities Capabilities
	ConnectedAt  time.Time

	session     Session
	releaseOnce sync.Once
	releaseErr  error
}

// Session returns the backend session owned by the connection.
func (c *Connection) Session() Session { return c.session }

func (c *Connection) release() error {
	c.releaseOnce.Do(func() {
		if c.session == nil {
			return
		}
		if err := c.session.Close(); err != nil && !alreadyClosed(err) {
			c.releaseErr = err
		}
	})
	return c.releaseErr
}

// Registry owns every backend connection of the gateway, keyed by name.
type Registry struct {
	opts    RegistryOptions
	logger  *zap.Logger
	metrics Metrics
	sleep   func(context.Context, time.Duration) error

	locks keyedMutex

	mu     sync.RWMutex
	conns  map[string]*Connection
	order  []string
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry(opts *RegistryOptions) *Registry {
	options := opts.withDefaults()
	return &Registry{
		opts:    options,
		logger:  options.Logger.Named("registry"),
		metrics: options.Metrics,
		sleep:   sleepContext,
		conns:   make(map[string]*Connection),
	}
}

// Connect opens a session to the backend described by d, snapshots its
// capabilities and registers it under name. Failed attempts are retried
// after a fixed delay; a descriptor that cannot produce a transport fails
// immediately. On success a previous connection with the same name is
// released before the new one is installed.
func (r *Registry) Connect(ctx context.Context, name string, d TransportDescriptor) (*Connection, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	unlock := r.locks.Lock(name)
	defer unlock()

	logger := r.logger.With(zap.String("backend", name), zap.String("transport", string(TransportOf(d))))
	maxAttempts := r.opts.MaxAttempts
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		logger.Info("connecting backend", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts))
		conn, err := r.connectOnce(ctx, name, d)
		r.metrics.ObserveConnectAttempt(name, err)
		if err == nil {
			if err := r.install(conn); err != nil {
				return nil, err
			}
			logger.Info("backend connected",
				zap.Int("attempt", attempt),
				zap.Int("tools", len(conn.Capabilities.Tools)),
				zap.Int("prompts", len(conn.Capabilities.Prompts)),
				zap.Int("resources", len(conn.Capabilities.Resources)),
				zap.Int("resource_templates", len(conn.Capabilities.ResourceTemplates)),
			)
			return conn, nil
		}
		var tce *TransportConstructionError
		if errors.As(err, &tce) {
			logger.Error("backend transport rejected", zap.Error(err))
			return nil, err
		}
		lastErr = err
		logger.Warn("backend connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		if attempt == maxAttempts {
			break
		}
		logger.Info("retrying backend connection",
			zap.Duration("delay", r.opts.RetryDelay),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)
		if err := r.sleep(ctx, r.opts.RetryDelay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}
	logger.Error("backend connect failed", zap.Int("attempts", attempts), zap.Error(lastErr))
	return nil, &ConnectError{Name: name, Attempts: attempts, Err: lastErr}
}

func (r *Registry) connectOnce(ctx context.Context, name string, d TransportDescriptor) (*Connection, error) {
	openCtx, cancel := context.WithTimeout(ctx, r.opts.OpenTimeout)
	session, err := r.opts.Dialer.Dial(openCtx, name, d)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("open timed out after %s: %w", r.opts.OpenTimeout, err)
		}
		return nil, err
	}
	if session == nil {
		return nil, errors.New("dialer returned no session")
	}
	caps, err := Aggregate(ctx, session)
	if err != nil {
		if cerr := session.Close(); cerr != nil && !alreadyClosed(cerr) {
			r.logger.Debug("close after failed aggregation", zap.String("backend", name), zap.Error(cerr))
		}
		return nil, err
	}
	return &Connection{
		Name:         name,
		Descriptor:   d,
		Capabilities: caps,
		ConnectedAt:  time.Now(),
		session:      session,
	}, nil
}

func (r *Registry) install(conn *Connection) error {
	if prev := r.remove(conn.Name); prev != nil {
		if err := prev.release(); err != nil {
			r.logger.Warn("release replaced backend", zap.String("backend", prev.Name), zap.Error(err))
		}
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.release()
		return fmt.Errorf("mcphost: registry closed while connecting %q", conn.Name)
	}
	r.conns[conn.Name] = conn
	r.order = append(r.order, conn.Name)
	n := len(r.conns)
	r.mu.Unlock()
	r.metrics.SetConnectedBackends(n)
	return nil
}

func (r *Registry) remove(name string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[name]
	if !ok {
		return nil
	}
	delete(r.conns, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.metrics.SetConnectedBackends(len(r.conns))
	return conn
}

// Disconnect releases and unregisters the named backend. Unknown names are
// not an error. The entry is removed even when releasing it fails.
func (r *Registry) Disconnect(ctx context.Context, name string) error {
	unlock := r.locks.Lock(name)
	defer unlock()

	conn := r.remove(name)
	if conn == nil {
		return nil
	}
	if err := releaseWithContext(ctx, conn); err != nil {
		return fmt.Errorf("mcphost: release %q: %w", name, err)
	}
	r.logger.Info("backend disconnected", zap.String("backend", name))
	return nil
}

// Lookup returns the connection registered under name.
func (r *Registry) Lookup(name string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[name]
	return conn, ok
}

// Get is Lookup with an *UnknownBackendError for absent names.
func (r *Registry) Get(name string) (*Connection, error) {
	if conn, ok := r.Lookup(name); ok {
		return conn, nil
	}
	return nil, &UnknownBackendError{Name: name}
}

// List returns the registered connections in the order they were installed.
func (r *Registry) List() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.conns[name])
	}
	return out
}

// Names returns the registered backend names in List order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len reports how many backends are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// TeardownAll releases every connection and empties the registry. Release
// failures are logged and skipped. Connects that finish afterwards are
// released instead of installed.
func (r *Registry) TeardownAll(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.order))
	for _, name := range r.order {
		conns = append(conns, r.conns[name])
	}
	r.conns = make(map[string]*Connection)
	r.order = nil
	r.mu.Unlock()
	r.metrics.SetConnectedBackends(0)

	for _, conn := range conns {
		if err := releaseWithContext(ctx, conn); err != nil {
			r.logger.Warn("release backend during teardown", zap.String("backend", conn.Name), zap.Error(err))
			continue
		}
		r.logger.Info("backend released", zap.String("backend", conn.Name))
	}
}

func releaseWithContext(ctx context.Context, conn *Connection) error {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	go func() {
		done <- conn.release()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func alreadyClosed(err error) bool {
	return errors.Is(err, mcp.ErrConnectionClosed) || errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// keyedMutex serializes work per key while letting different keys proceed
// concurrently.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
