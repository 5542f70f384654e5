// Package gateway serves the backends of a mcphost.Registry to MCP callers
// over one Streamable HTTP endpoint.
//
// Every caller session gets its own frontend server carrying three
// management tools (connect_backend, disconnect_backend, list_backends) and
// one forwarding handler per distinct tool, prompt, resource and resource
// template found in the registry when the session opened. When several
// backends offer the same capability, the one connected first serves it.
// Owners are looked up again on every call, so a handler whose backend has
// gone away fails with *mcphost.UnknownCapabilityError.
package gateway
