package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// expandEnv parses raw as YAML (JSON is accepted too) and replaces ${VAR}
// references in scalar values with the process environment. It returns the
// expanded document and the names of referenced variables that were unset.
func expandEnv(raw []byte) (*yaml.Node, []string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	e := &envExpander{missing: map[string]struct{}{}}
	e.walk(&root)
	return &root, e.missingNames(), nil
}

type envExpander struct {
	missing map[string]struct{}
}

func (e *envExpander) walk(node *yaml.Node) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, child := range node.Content {
			e.walk(child)
		}
	case yaml.MappingNode:
		// keys are left untouched
		for i := 1; i < len(node.Content); i += 2 {
			e.walk(node.Content[i])
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			e.walk(node.Alias)
		}
	case yaml.ScalarNode:
		e.scalar(node)
	}
}

func (e *envExpander) scalar(node *yaml.Node) {
	if node.Tag != "" && node.Tag != "!!str" {
		return
	}
	if !strings.Contains(node.Value, "$") {
		return
	}
	expanded := os.Expand(node.Value, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		e.missing[key] = struct{}{}
		return ""
	})
	if expanded == node.Value {
		return
	}
	node.Value = expanded
	if node.Style != 0 {
		// quoted scalars stay strings
		node.Tag = "!!str"
		return
	}
	node.Tag = scalarTag(expanded)
	if node.Tag != "!!str" {
		node.Value = strings.TrimSpace(expanded)
	}
}

func (e *envExpander) missingNames() []string {
	if len(e.missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(e.missing))
	for name := range e.missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// scalarTag resolves the YAML tag of an expanded plain scalar, so that
// port: ${PORT} decodes as an int.
func scalarTag(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return "!!str"
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return "!!int"
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return "!!float"
	}
	if _, err := strconv.ParseBool(v); err == nil && (v == "true" || v == "false") {
		return "!!bool"
	}
	return "!!str"
}
