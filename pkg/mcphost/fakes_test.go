package mcphost

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// fakeSession serves capability listings from fixed pages. Cursor "pN"
// selects page N (1-based); the empty cursor is page 1.
type fakeSession struct {
	mu sync.Mutex

	toolPages     [][]*mcp.Tool
	promptPages   [][]*mcp.Prompt
	resources     []*mcp.Resource
	templates     []*mcp.ResourceTemplate
	listErr       map[string]error
	closeErr      error
	listCalls     map[string][]string
	closeCount    int
	callToolCount int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		listErr:   make(map[string]error),
		listCalls: make(map[string][]string),
	}
}

func (s *fakeSession) record(kind, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls[kind] = append(s.listCalls[kind], cursor)
	return s.listErr[kind]
}

func pageFor[T any](pages [][]T, cursor string) ([]T, string, error) {
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "p"))
		if err != nil || n < 1 || n > len(pages) {
			return nil, "", fmt.Errorf("bad cursor %q", cursor)
		}
		idx = n - 1
	}
	if len(pages) == 0 {
		return nil, "", nil
	}
	next := ""
	if idx+1 < len(pages) {
		next = fmt.Sprintf("p%d", idx+2)
	}
	return pages[idx], next, nil
}

func (s *fakeSession) ListTools(_ context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	if err := s.record("tools", params.Cursor); err != nil {
		return nil, err
	}
	items, next, err := pageFor(s.toolPages, params.Cursor)
	if err != nil {
		return nil, err
	}
	return &mcp.ListToolsResult{Tools: items, NextCursor: next}, nil
}

func (s *fakeSession) ListPrompts(_ context.Context, params *mcp.ListPromptsParams) (*mcp.ListPromptsResult, error) {
	if err := s.record("prompts", params.Cursor); err != nil {
		return nil, err
	}
	items, next, err := pageFor(s.promptPages, params.Cursor)
	if err != nil {
		return nil, err
	}
	return &mcp.ListPromptsResult{Prompts: items, NextCursor: next}, nil
}

func (s *fakeSession) ListResources(_ context.Context, params *mcp.ListResourcesParams) (*mcp.ListResourcesResult, error) {
	if err := s.record("resources", params.Cursor); err != nil {
		return nil, err
	}
	return &mcp.ListResourcesResult{Resources: s.resources}, nil
}

func (s *fakeSession) ListResourceTemplates(_ context.Context, params *mcp.ListResourceTemplatesParams) (*mcp.ListResourceTemplatesResult, error) {
	if err := s.record("resource templates", params.Cursor); err != nil {
		return nil, err
	}
	return &mcp.ListResourceTemplatesResult{ResourceTemplates: s.templates}, nil
}

func (s *fakeSession) CallTool(context.Context, *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.callToolCount++
	s.mu.Unlock()
	return &mcp.CallToolResult{}, nil
}

func (s *fakeSession) GetPrompt(context.Context, *mcp.GetPromptParams) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}

func (s *fakeSession) ReadResource(context.Context, *mcp.ReadResourceParams) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return s.closeErr
}

func (s *fakeSession) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// scriptedDialer hands out sessions or errors in order, one per Dial.
type scriptedDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   []string
}

type dialResult struct {
	session Session
	err     error
}

func (d *scriptedDialer) Dial(_ context.Context, name string, _ TransportDescriptor) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, name)
	if len(d.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	res := d.results[0]
	d.results = d.results[1:]
	return res.session, res.err
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

var testDescriptor = &NetworkDescriptor{Kind: NetworkStreamable, Endpoint: "http://127.0.0.1:9/mcp"}
