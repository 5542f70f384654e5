package mcphost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "ping", Version: "0.0.1"}, nil)
	server.AddTool(&mcp.Tool{Name: "ping", InputSchema: map[string]any{"type": "object"}},
		func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "pong"}}}, nil
		})
	return server
}

// TestSDKDialerNetworkSessionsOutliveDialContext connects over both HTTP
// flavours, cancels the context the connect ran under and checks that the
// session still serves calls.
func TestSDKDialerNetworkSessionsOutliveDialContext(t *testing.T) {
	getServer := func(*http.Request) *mcp.Server { return pingServer() }
	tests := []struct {
		name    string
		kind    NetworkKind
		handler http.Handler
	}{
		{name: "sse", kind: NetworkSSE, handler: mcp.NewSSEHandler(getServer, nil)},
		{name: "streamable", kind: NetworkStreamable, handler: mcp.NewStreamableHTTPHandler(getServer, nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			reg := NewRegistry(&RegistryOptions{Dialer: &SDKDialer{}, MaxAttempts: 1})
			defer reg.TeardownAll(context.Background())

			ctx, cancel := context.WithCancel(context.Background())
			conn, err := reg.Connect(ctx, tc.name, &NetworkDescriptor{Kind: tc.kind, Endpoint: srv.URL})
			require.NoError(t, err)
			cancel()

			_, ok := conn.Capabilities.Tool("ping")
			require.True(t, ok)

			res, err := conn.Session().CallTool(context.Background(), &mcp.CallToolParams{Name: "ping"})
			require.NoError(t, err)
			require.Len(t, res.Content, 1)
			text, ok := res.Content[0].(*mcp.TextContent)
			require.True(t, ok)
			assert.Equal(t, "pong", text.Text)

			_ = reg.Disconnect(context.Background(), tc.name)
			assert.Equal(t, 0, reg.Len())
		})
	}
}
