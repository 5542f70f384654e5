package mcphost

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Session is the part of a live backend session the registry and gateway
// use. *mcp.ClientSession satisfies it.
type Session interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	ListPrompts(ctx context.Context, params *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error)
	ListResources(ctx context.Context, params *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error)
	ListResourceTemplates(ctx context.Context, params *mcp.ListResourceTemplatesParams) (*mcp.ListResourceTemplatesResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, params *mcp.GetPromptParams) (*mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, params *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error)
	Close() error
}

var _ Session = (*mcp.ClientSession)(nil)

// Dialer opens a session to a backend. Implementations return a
// *TransportConstructionError when the descriptor itself is unusable; any
// other error is treated as a transient open failure.
type Dialer interface {
	Dial(ctx context.Context, name string, d TransportDescriptor) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, name string, d TransportDescriptor) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, name string, d TransportDescriptor) (Session, error) {
	return f(ctx, name, d)
}
