package mcphost

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NetworkKind selects the HTTP flavour used to reach a network backend.
type NetworkKind string

const (
	NetworkSSE        NetworkKind = "sse"
	NetworkStreamable NetworkKind = "streamable-http"
)

// TransportDescriptor describes how to reach one backend. The set of
// implementations is closed: *NetworkDescriptor and *ProcessDescriptor.
type TransportDescriptor interface {
	transport() TransportKind
}

// NetworkDescriptor reaches a backend over HTTP.
type NetworkDescriptor struct {
	Kind     NetworkKind
	Endpoint string
	// Query parameters are appended to Endpoint before dialing.
	Query   map[string]string
	Headers map[string]string
}

func (*NetworkDescriptor) transport() TransportKind { return TransportNetwork }

// ProcessDescriptor spawns a backend and talks to it over stdio.
type ProcessDescriptor struct {
	Command string
	Args    []string
	// Env entries are added on top of the gateway's own environment.
	Env map[string]string
	Dir string
}

func (*ProcessDescriptor) transport() TransportKind { return TransportProcess }

// DescriptorSpec is the serialized form of a TransportDescriptor, as found in
// configuration files and in connect_backend arguments.
type DescriptorSpec struct {
	Type    string            `json:"type" yaml:"type" mapstructure:"type" validate:"required,oneof=sse streamable-http http stdio" jsonschema:"enum=sse,enum=streamable-http,enum=http,enum=stdio,description=Transport used to reach the backend"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url" validate:"required_unless=Type stdio,omitempty,url" jsonschema:"description=Endpoint for sse and streamable-http backends"`
	Query   map[string]string `json:"query,omitempty" yaml:"query,omitempty" mapstructure:"query" jsonschema:"description=Query parameters appended to the endpoint"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers" jsonschema:"description=Extra HTTP headers"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty" mapstructure:"command" validate:"required_if=Type stdio" jsonschema:"description=Executable for stdio backends"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty" mapstructure:"cwd"`
}

var validate = validator.New()

// Descriptor validates s and converts it into a TransportDescriptor.
func (s DescriptorSpec) Descriptor() (TransportDescriptor, error) {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if err := validate.Struct(s); err != nil {
		return nil, describeValidation(err)
	}
	switch s.Type {
	case "stdio":
		return &ProcessDescriptor{
			Command: s.Command,
			Args:    slices.Clone(s.Args),
			Env:     maps.Clone(s.Env),
			Dir:     s.Cwd,
		}, nil
	case "sse":
		return &NetworkDescriptor{Kind: NetworkSSE, Endpoint: s.URL, Query: maps.Clone(s.Query), Headers: maps.Clone(s.Headers)}, nil
	default:
		return &NetworkDescriptor{Kind: NetworkStreamable, Endpoint: s.URL, Query: maps.Clone(s.Query), Headers: maps.Clone(s.Headers)}, nil
	}
}

// SpecOf renders a descriptor back into its serialized form.
func SpecOf(d TransportDescriptor) DescriptorSpec {
	switch v := d.(type) {
	case *ProcessDescriptor:
		return DescriptorSpec{Type: "stdio", Command: v.Command, Args: slices.Clone(v.Args), Env: maps.Clone(v.Env), Cwd: v.Dir}
	case *NetworkDescriptor:
		kind := v.Kind
		if kind == "" {
			kind = NetworkStreamable
		}
		return DescriptorSpec{Type: string(kind), URL: v.Endpoint, Query: maps.Clone(v.Query), Headers: maps.Clone(v.Headers)}
	default:
		return DescriptorSpec{}
	}
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("mcphost: invalid transport: %w", err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("mcphost: invalid transport field %q: failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return errors.Join(errs...)
}
