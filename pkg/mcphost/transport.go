package mcphost

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SDKDialer opens go-sdk client sessions.
type SDKDialer struct {
	// ClientVersion is reported to backends during initialization.
	ClientVersion string
	ClientOptions *mcp.ClientOptions
	// HTTPClient is the base client for network backends. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Dial builds the transport for d and runs the MCP handshake. The backend
// name doubles as the client name.
func (s *SDKDialer) Dial(ctx context.Context, name string, d TransportDescriptor) (Session, error) {
	transport, err := BuildTransport(d, s.HTTPClient)
	if err != nil {
		return nil, &TransportConstructionError{Name: name, Err: err}
	}
	version := s.ClientVersion
	if version == "" {
		version = "0.1.0"
	}
	client := mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, s.ClientOptions)
	session, err := client.Connect(ctx, detachedTransport{transport}, nil)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// detachedTransport connects its transport under a context that is never
// cancelled. The SSE transport binds its event stream to the Connect
// context, and the session must outlive the dial context; ctx still bounds
// the handshake.
type detachedTransport struct {
	mcp.Transport
}

func (t detachedTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	return t.Transport.Connect(context.WithoutCancel(ctx))
}

// BuildTransport turns a descriptor into a go-sdk transport without
// connecting it.
func BuildTransport(d TransportDescriptor, base *http.Client) (mcp.Transport, error) {
	switch v := d.(type) {
	case *ProcessDescriptor:
		if v == nil || strings.TrimSpace(v.Command) == "" {
			return nil, errors.New("command is required")
		}
		cmd := exec.Command(v.Command, v.Args...)
		cmd.Dir = v.Dir
		if len(v.Env) > 0 {
			cmd.Env = append(os.Environ(), formatEnv(v.Env)...)
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case *NetworkDescriptor:
		if v == nil {
			return nil, errors.New("endpoint is required")
		}
		endpoint, err := endpointWithQuery(v.Endpoint, v.Query)
		if err != nil {
			return nil, err
		}
		client := decorateHTTPClient(base, v.Headers)
		switch v.Kind {
		case NetworkSSE:
			return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: client}, nil
		case NetworkStreamable, "":
			return &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: client}, nil
		default:
			return nil, fmt.Errorf("unsupported network kind %q", v.Kind)
		}
	case nil:
		return nil, errors.New("transport descriptor is required")
	default:
		return nil, fmt.Errorf("unsupported transport descriptor %T", d)
	}
}

func endpointWithQuery(endpoint string, query map[string]string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", errors.New("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func formatEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func decorateHTTPClient(base *http.Client, headers map[string]string) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	if len(headers) == 0 {
		return base
	}
	clone := *base
	clone.Transport = &headerDecorator{
		next:    defaultRoundTripper(base.Transport),
		headers: canonicalHeaders(headers),
	}
	return &clone
}

func canonicalHeaders(headers map[string]string) http.Header {
	out := make(http.Header, len(headers))
	for k, v := range headers {
		out.Set(k, v)
	}
	return out
}

type headerDecorator struct {
	next    http.RoundTripper
	headers http.Header
}

func (d *headerDecorator) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, values := range d.headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return d.next.RoundTrip(req)
}

func defaultRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next != nil {
		return next
	}
	return http.DefaultTransport
}
