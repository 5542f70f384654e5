package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
	"github.com/iHeyTang/mcp-uni/pkg/schemaconv"
)

// ownerOfTool returns the first connection, in List order, offering name.
// Owners are resolved on every call, so a handler keeps working when the
// backend that supplied its descriptor leaves and another one offers the
// same capability.
func (g *Gateway) ownerOfTool(name string) (*mcphost.Connection, *mcp.Tool, bool) {
	for _, conn := range g.registry.List() {
		if tool, ok := conn.Capabilities.Tool(name); ok {
			return conn, tool, true
		}
	}
	return nil, nil, false
}

func (g *Gateway) ownerOfPrompt(name string) (*mcphost.Connection, *mcp.Prompt, bool) {
	for _, conn := range g.registry.List() {
		if prompt, ok := conn.Capabilities.Prompt(name); ok {
			return conn, prompt, true
		}
	}
	return nil, nil, false
}

func (g *Gateway) ownerOfResource(uri string) (*mcphost.Connection, bool) {
	for _, conn := range g.registry.List() {
		if _, ok := conn.Capabilities.Resource(uri); ok {
			return conn, true
		}
	}
	return nil, false
}

func (g *Gateway) ownerOfResourceTemplate(uriTemplate string) (*mcphost.Connection, bool) {
	for _, conn := range g.registry.List() {
		if _, ok := conn.Capabilities.ResourceTemplate(uriTemplate); ok {
			return conn, true
		}
	}
	return nil, false
}

func (fe *frontend) forwardTool(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conn, tool, ok := fe.gw.ownerOfTool(name)
		if !ok {
			return nil, &mcphost.UnknownCapabilityError{Kind: mcphost.KindTool, Name: name}
		}
		var raw json.RawMessage
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := decodeArguments(raw)
		if err != nil {
			return nil, fmt.Errorf("gateway: tool %q: %w", name, err)
		}
		if err := schemaconv.ExtractFieldMap(tool.InputSchema).Validate(args); err != nil {
			return nil, fmt.Errorf("gateway: invalid arguments for tool %q: %w", name, err)
		}

		params := &mcp.CallToolParams{Name: name}
		if len(raw) > 0 {
			params.Arguments = raw
		}
		if relay, callerToken := fe.gw.opts.Progress, callerProgressToken(req); relay != nil && callerToken != nil && req.Session != nil {
			token, done := relay.track(conn.Name, req.Session, callerToken)
			defer done()
			params.Meta = mcp.Meta{"progressToken": token}
		}
		var result *mcp.CallToolResult
		err = fe.gw.invoke(ctx, conn, mcphost.KindTool, name, func(ctx context.Context, s mcphost.Session) error {
			var err error
			result, err = s.CallTool(ctx, params)
			return err
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (fe *frontend) forwardPrompt(name string) mcp.PromptHandler {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		conn, prompt, ok := fe.gw.ownerOfPrompt(name)
		if !ok {
			return nil, &mcphost.UnknownCapabilityError{Kind: mcphost.KindPrompt, Name: name}
		}
		params := &mcp.GetPromptParams{Name: name}
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			params.Arguments = req.Params.Arguments
		}
		args := make(map[string]any, len(params.Arguments))
		for k, v := range params.Arguments {
			args[k] = v
		}
		if err := promptFields(prompt).Validate(args); err != nil {
			return nil, fmt.Errorf("gateway: invalid arguments for prompt %q: %w", name, err)
		}

		var result *mcp.GetPromptResult
		err := fe.gw.invoke(ctx, conn, mcphost.KindPrompt, name, func(ctx context.Context, s mcphost.Session) error {
			var err error
			result, err = s.GetPrompt(ctx, params)
			return err
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

func (fe *frontend) forwardResource(uri string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		conn, ok := fe.gw.ownerOfResource(uri)
		if !ok {
			return nil, &mcphost.UnknownCapabilityError{Kind: mcphost.KindResource, Name: uri}
		}
		return fe.gw.readResource(ctx, conn, mcphost.KindResource, uri, uri)
	}
}

// forwardResourceTemplate forwards reads whose URI matched uriTemplate. The
// concrete URI from the request is what reaches the backend.
func (fe *frontend) forwardResourceTemplate(uriTemplate string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		conn, ok := fe.gw.ownerOfResourceTemplate(uriTemplate)
		if !ok {
			return nil, &mcphost.UnknownCapabilityError{Kind: mcphost.KindResourceTemplate, Name: uriTemplate}
		}
		uri := uriTemplate
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		return fe.gw.readResource(ctx, conn, mcphost.KindResourceTemplate, uriTemplate, uri)
	}
}

func (g *Gateway) readResource(ctx context.Context, conn *mcphost.Connection, kind mcphost.CapabilityKind, name, uri string) (*mcp.ReadResourceResult, error) {
	var result *mcp.ReadResourceResult
	err := g.invoke(ctx, conn, kind, name, func(ctx context.Context, s mcphost.Session) error {
		var err error
		result, err = s.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// invoke runs call against the owning session, records its duration and
// wraps a failure in *mcphost.BackendInvocationError.
func (g *Gateway) invoke(ctx context.Context, conn *mcphost.Connection, kind mcphost.CapabilityKind, name string, call func(context.Context, mcphost.Session) error) error {
	logger := g.logger.With(
		zap.String("call_id", uuid.NewString()),
		zap.String("backend", conn.Name),
		zap.String("kind", string(kind)),
		zap.String("name", name),
	)
	start := time.Now()
	err := call(ctx, conn.Session())
	elapsed := time.Since(start)
	g.metrics.ObserveForward(metricKind(kind), elapsed, err)
	if err != nil {
		logger.Warn("forwarded call failed", zap.Duration("duration", elapsed), zap.Error(err))
		return &mcphost.BackendInvocationError{Backend: conn.Name, Kind: kind, Name: name, Err: err}
	}
	logger.Debug("forwarded call", zap.Duration("duration", elapsed))
	return nil
}

func metricKind(kind mcphost.CapabilityKind) string {
	return strings.ReplaceAll(string(kind), " ", "_")
}

// decodeArguments parses tool arguments. Absent or null arguments decode to an
// empty object.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// promptFields derives the field map of a prompt: every declared argument is
// a string, optional unless marked required.
func promptFields(prompt *mcp.Prompt) schemaconv.FieldMap {
	properties := make(map[string]any, len(prompt.Arguments))
	required := make([]any, 0, len(prompt.Arguments))
	for _, arg := range prompt.Arguments {
		if arg == nil || arg.Name == "" {
			continue
		}
		properties[arg.Name] = map[string]any{"type": "string"}
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	return schemaconv.ExtractFieldMap(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
}
