package mcphost

import (
	"errors"
	"fmt"
)

// ErrEmptyName is returned by Connect when no backend name is given.
var ErrEmptyName = errors.New("mcphost: backend name is required")

// TransportConstructionError reports a descriptor that could not be turned
// into a transport. Connect does not retry it.
type TransportConstructionError struct {
	Name string
	Err  error
}

func (e *TransportConstructionError) Error() string {
	return fmt.Sprintf("mcphost: cannot build transport for %q: %v", e.Name, e.Err)
}

func (e *TransportConstructionError) Unwrap() error { return e.Err }

// ConnectError is returned once every connect attempt has failed.
type ConnectError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("mcphost: connect %q failed after %d attempt(s): %v", e.Name, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// UnknownBackendError reports a lookup of a name that is not registered.
type UnknownBackendError struct {
	Name string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("mcphost: unknown backend %q", e.Name)
}

// CapabilityKind names one of the four capability families.
type CapabilityKind string

const (
	KindTool             CapabilityKind = "tool"
	KindPrompt           CapabilityKind = "prompt"
	KindResource         CapabilityKind = "resource"
	KindResourceTemplate CapabilityKind = "resource template"
)

// UnknownCapabilityError reports that no connected backend owns a capability.
type UnknownCapabilityError struct {
	Kind CapabilityKind
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

// BackendInvocationError wraps a failure returned by the owning backend.
type BackendInvocationError struct {
	Backend string
	Kind    CapabilityKind
	Name    string
	Err     error
}

func (e *BackendInvocationError) Error() string {
	return fmt.Sprintf("backend %q failed %s %q: %v", e.Backend, e.Kind, e.Name, e.Err)
}

func (e *BackendInvocationError) Unwrap() error { return e.Err }
