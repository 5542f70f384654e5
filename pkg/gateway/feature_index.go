package gateway

import (
	"encoding/json"
	"maps"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iHeyTang/mcp-uni/pkg/mcphost"
)

// metaKeyBackend records which backend supplied an exposed descriptor.
const metaKeyBackend = "mcp-uni/backend"

// featureIndex tracks the capabilities already exposed on one frontend
// server. The first backend to offer a name wins; later offers are dropped.
type featureIndex struct {
	mu sync.Mutex

	reserved  map[string]struct{}
	tools     map[string]string
	prompts   map[string]string
	resources map[string]string
	templates map[string]string
}

type exposedSet struct {
	Tools             []*mcp.Tool
	Prompts           []*mcp.Prompt
	Resources         []*mcp.Resource
	ResourceTemplates []*mcp.ResourceTemplate
	// Shadowed lists backend tools hidden by a management tool of the same name.
	Shadowed []string
}

func (s exposedSet) empty() bool {
	return len(s.Tools)+len(s.Prompts)+len(s.Resources)+len(s.ResourceTemplates) == 0
}

func newFeatureIndex(reservedTools ...string) *featureIndex {
	reserved := make(map[string]struct{}, len(reservedTools))
	for _, name := range reservedTools {
		reserved[name] = struct{}{}
	}
	return &featureIndex{
		reserved:  reserved,
		tools:     make(map[string]string),
		prompts:   make(map[string]string),
		resources: make(map[string]string),
		templates: make(map[string]string),
	}
}

// Claim returns the part of a backend's capabilities that is not exposed yet
// and marks it as exposed.
func (f *featureIndex) Claim(backend string, caps mcphost.Capabilities) exposedSet {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out exposedSet
	for _, tool := range caps.Tools {
		if tool == nil {
			continue
		}
		if _, ok := f.reserved[tool.Name]; ok {
			out.Shadowed = append(out.Shadowed, tool.Name)
			continue
		}
		if _, ok := f.tools[tool.Name]; ok {
			continue
		}
		f.tools[tool.Name] = backend
		out.Tools = append(out.Tools, cloneTool(tool, backend))
	}
	for _, prompt := range caps.Prompts {
		if prompt == nil {
			continue
		}
		if _, ok := f.prompts[prompt.Name]; ok {
			continue
		}
		f.prompts[prompt.Name] = backend
		out.Prompts = append(out.Prompts, clonePrompt(prompt, backend))
	}
	for _, resource := range caps.Resources {
		if resource == nil {
			continue
		}
		if _, ok := f.resources[resource.URI]; ok {
			continue
		}
		f.resources[resource.URI] = backend
		out.Resources = append(out.Resources, cloneResource(resource, backend))
	}
	for _, tpl := range caps.ResourceTemplates {
		if tpl == nil {
			continue
		}
		if _, ok := f.templates[tpl.URITemplate]; ok {
			continue
		}
		f.templates[tpl.URITemplate] = backend
		out.ResourceTemplates = append(out.ResourceTemplates, cloneResourceTemplate(tpl, backend))
	}
	return out
}

// Supplier reports which backend's descriptor was used to expose a
// capability. key is a name for tools and prompts and a URI (template) for
// resources.
func (f *featureIndex) Supplier(kind mcphost.CapabilityKind, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var m map[string]string
	switch kind {
	case mcphost.KindTool:
		m = f.tools
	case mcphost.KindPrompt:
		m = f.prompts
	case mcphost.KindResource:
		m = f.resources
	case mcphost.KindResourceTemplate:
		m = f.templates
	}
	backend, ok := m[key]
	return backend, ok
}

func cloneTool(tool *mcp.Tool, backend string) *mcp.Tool {
	clone := *tool
	clone.InputSchema = objectSchema(tool.InputSchema)
	clone.Meta = withMeta(tool.Meta, map[string]any{metaKeyBackend: backend})
	return &clone
}

func clonePrompt(prompt *mcp.Prompt, backend string) *mcp.Prompt {
	clone := *prompt
	clone.Meta = withMeta(prompt.Meta, map[string]any{metaKeyBackend: backend})
	return &clone
}

func cloneResource(resource *mcp.Resource, backend string) *mcp.Resource {
	clone := *resource
	clone.Meta = withMeta(resource.Meta, map[string]any{metaKeyBackend: backend})
	return &clone
}

func cloneResourceTemplate(tpl *mcp.ResourceTemplate, backend string) *mcp.ResourceTemplate {
	clone := *tpl
	clone.Meta = withMeta(tpl.Meta, map[string]any{metaKeyBackend: backend})
	return &clone
}

// objectSchema returns schema as a JSON object when it declares type
// "object", and the bare object schema otherwise. mcp.Server.AddTool refuses
// anything else.
func objectSchema(schema any) map[string]any {
	var m map[string]any
	switch v := schema.(type) {
	case map[string]any:
		m = v
	case nil:
	default:
		b, err := json.Marshal(v)
		if err == nil {
			_ = json.Unmarshal(b, &m)
		}
	}
	if m == nil || m["type"] != "object" {
		return map[string]any{"type": "object"}
	}
	return m
}

func withMeta(base map[string]any, extras map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any)
	}
	for k, v := range extras {
		out[k] = v
	}
	return out
}
