package mcphost

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Drain walks a cursor-paginated listing from the beginning and returns every
// item in order. list fetches one page; an empty next cursor ends the
// listing. A failing page aborts the drain and discards what was collected so
// far.
func Drain[T any](ctx context.Context, list func(ctx context.Context, cursor string) (items []T, next string, err error)) ([]T, error) {
	var (
		all    []T
		cursor string
	)
	for page := 1; ; page++ {
		items, next, err := list(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// Capabilities is the snapshot of what a backend exposed when it connected.
type Capabilities struct {
	Tools             []*mcp.Tool
	Prompts           []*mcp.Prompt
	Resources         []*mcp.Resource
	ResourceTemplates []*mcp.ResourceTemplate
}

// Tool returns the descriptor of the named tool, if listed.
func (c Capabilities) Tool(name string) (*mcp.Tool, bool) {
	for _, t := range c.Tools {
		if t != nil && t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Prompt returns the descriptor of the named prompt, if listed.
func (c Capabilities) Prompt(name string) (*mcp.Prompt, bool) {
	for _, p := range c.Prompts {
		if p != nil && p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Resource returns the resource with the given URI, if listed.
func (c Capabilities) Resource(uri string) (*mcp.Resource, bool) {
	for _, r := range c.Resources {
		if r != nil && r.URI == uri {
			return r, true
		}
	}
	return nil, false
}

// ResourceTemplate returns the template with the given URI template, if listed.
func (c Capabilities) ResourceTemplate(uriTemplate string) (*mcp.ResourceTemplate, bool) {
	for _, rt := range c.ResourceTemplates {
		if rt != nil && rt.URITemplate == uriTemplate {
			return rt, true
		}
	}
	return nil, false
}

// Aggregate drains tools, prompts, resources and resource templates from
// session, one kind after the other.
func Aggregate(ctx context.Context, session Session) (Capabilities, error) {
	var (
		caps Capabilities
		err  error
	)
	caps.Tools, err = drainKind(ctx, "tools", func(ctx context.Context, cursor string) ([]*mcp.Tool, string, error) {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil || res == nil {
			return nil, "", err
		}
		return res.Tools, res.NextCursor, nil
	})
	if err != nil {
		return Capabilities{}, err
	}
	caps.Prompts, err = drainKind(ctx, "prompts", func(ctx context.Context, cursor string) ([]*mcp.Prompt, string, error) {
		res, err := session.ListPrompts(ctx, &mcp.ListPromptsParams{Cursor: cursor})
		if err != nil || res == nil {
			return nil, "", err
		}
		return res.Prompts, res.NextCursor, nil
	})
	if err != nil {
		return Capabilities{}, err
	}
	caps.Resources, err = drainKind(ctx, "resources", func(ctx context.Context, cursor string) ([]*mcp.Resource, string, error) {
		res, err := session.ListResources(ctx, &mcp.ListResourcesParams{Cursor: cursor})
		if err != nil || res == nil {
			return nil, "", err
		}
		return res.Resources, res.NextCursor, nil
	})
	if err != nil {
		return Capabilities{}, err
	}
	caps.ResourceTemplates, err = drainKind(ctx, "resource templates", func(ctx context.Context, cursor string) ([]*mcp.ResourceTemplate, string, error) {
		res, err := session.ListResourceTemplates(ctx, &mcp.ListResourceTemplatesParams{Cursor: cursor})
		if err != nil || res == nil {
			return nil, "", err
		}
		return res.ResourceTemplates, res.NextCursor, nil
	})
	if err != nil {
		return Capabilities{}, err
	}
	return caps, nil
}

func drainKind[T any](ctx context.Context, kind string, list func(context.Context, string) ([]T, string, error)) ([]T, error) {
	items, err := Drain(ctx, list)
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return items, nil
}

// isMethodNotFound reports whether the backend rejected a listing because it
// does not implement that capability family.
func isMethodNotFound(err error) bool {
	var rpcErr *jsonrpc.Error
	return errors.As(err, &rpcErr) && rpcErr.Code == jsonrpc.CodeMethodNotFound
}
