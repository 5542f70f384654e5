// Package mcphost keeps track of the backend MCP servers a gateway fronts.
//
// # Core entry points
//
//   - Registry owns one Connection per backend name. Connect dials a backend,
//     retries a bounded number of times with a fixed delay, and snapshots the
//     backend's tools, prompts, resources and resource templates. Disconnect
//     and TeardownAll release sessions.
//   - TransportDescriptor (NetworkDescriptor or ProcessDescriptor) says how to
//     reach a backend. DescriptorSpec is its serialized form; use TransportOf,
//     AsNetwork and AsProcess to branch on the variant.
//   - Drain and Aggregate implement cursor-paginated capability discovery.
//
// Capability snapshots are taken once per connection and are not refreshed
// when a backend later changes what it exposes.
package mcphost
