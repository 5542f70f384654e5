package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
	"github.com/iHeyTang/mcp-uni/pkg/schemaconv"
)

const (
	ToolConnectBackend    = "connect_backend"
	ToolDisconnectBackend = "disconnect_backend"
	ToolListBackends      = "list_backends"
)

var managementToolNames = []string{ToolConnectBackend, ToolDisconnectBackend, ToolListBackends}

type connectBackendArgs struct {
	Name      string                 `json:"name" validate:"required" jsonschema:"description=Unique name for the backend"`
	Transport mcphost.DescriptorSpec `json:"transport" jsonschema:"description=How to reach the backend"`
}

type disconnectBackendArgs struct {
	Name string `json:"name" validate:"required" jsonschema:"description=Name of a connected backend"`
}

type listBackendsArgs struct{}

var validate = validator.New()

// managementTool is a tool whose arguments decode into A.
type managementTool[A any] struct {
	tool   *mcp.Tool
	fields schemaconv.FieldMap
}

func newManagementTool[A any](name, description string) managementTool[A] {
	schema := reflectInputSchema[A]()
	return managementTool[A]{
		tool:   &mcp.Tool{Name: name, Description: description, InputSchema: schema},
		fields: schemaconv.ExtractFieldMap(schema),
	}
}

// decode validates raw against the reflected schema, then the struct tags.
func (m managementTool[A]) decode(raw json.RawMessage) (A, error) {
	var args A
	fields, err := decodeArguments(raw)
	if err != nil {
		return args, fmt.Errorf("gateway: %s: %w", m.tool.Name, err)
	}
	if err := m.fields.Validate(fields); err != nil {
		return args, fmt.Errorf("gateway: invalid arguments for %s: %w", m.tool.Name, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return args, fmt.Errorf("gateway: %s: %w", m.tool.Name, err)
		}
	}
	if err := validate.Struct(args); err != nil {
		return args, fmt.Errorf("gateway: invalid arguments for %s: %w", m.tool.Name, err)
	}
	return args, nil
}

func reflectInputSchema[A any]() map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	var out map[string]any
	if b, err := json.Marshal(s); err == nil {
		_ = json.Unmarshal(b, &out)
	}
	return objectSchema(out)
}

var (
	connectBackendTool = newManagementTool[connectBackendArgs](ToolConnectBackend,
		"Connect a backend MCP server and route its tools, prompts and resources through this gateway")
	disconnectBackendTool = newManagementTool[disconnectBackendArgs](ToolDisconnectBackend,
		"Disconnect a backend MCP server")
	listBackendsTool = newManagementTool[listBackendsArgs](ToolListBackends,
		"List the names of the connected backend MCP servers")
)

func (fe *frontend) addManagementTools() {
	fe.server.AddTool(connectBackendTool.tool, fe.connectBackend)
	fe.server.AddTool(disconnectBackendTool.tool, fe.disconnectBackend)
	fe.server.AddTool(listBackendsTool.tool, fe.listBackends)
}

func (fe *frontend) connectBackend(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := connectBackendTool.decode(rawArguments(req))
	if err != nil {
		return nil, err
	}
	d, err := args.Transport.Descriptor()
	if err != nil {
		return nil, fmt.Errorf("gateway: connect %q: %w", args.Name, err)
	}
	conn, err := fe.gw.registry.Connect(ctx, args.Name, d)
	if err != nil {
		return nil, err
	}
	if fe.gw.opts.ExposeOnConnect {
		fe.expose(conn)
	}
	fe.notifyToolsChanged()
	return textResult("Connected backend: " + args.Name), nil
}

func (fe *frontend) disconnectBackend(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := disconnectBackendTool.decode(rawArguments(req))
	if err != nil {
		return nil, err
	}
	if err := fe.gw.registry.Disconnect(ctx, args.Name); err != nil {
		return nil, err
	}
	return textResult("Disconnected backend: " + args.Name), nil
}

func (fe *frontend) listBackends(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := listBackendsTool.decode(rawArguments(req)); err != nil {
		return nil, err
	}
	return textResult(strings.Join(fe.gw.registry.Names(), ", ")), nil
}

// notifyToolsChanged makes the frontend server announce a tools list change
// to its session. mcp.Server sends notifications/tools/list_changed whenever
// a tool is added, so re-adding list_backends is what emits the notice; it is
// not a no-op. Every caller session has its own frontend server, so only the
// session that ran connect_backend is notified. Other sessions see the new
// backend when they reconnect.
func (fe *frontend) notifyToolsChanged() {
	fe.server.AddTool(listBackendsTool.tool, fe.listBackends)
	fe.gw.logger.Debug("tools list changed", zap.Int("backends", fe.gw.registry.Len()))
}

func rawArguments(req *mcp.CallToolRequest) json.RawMessage {
	if req == nil || req.Params == nil {
		return nil
	}
	return req.Params.Arguments
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
