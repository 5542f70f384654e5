// Package schemaconv turns the JSON Schemas backends attach to tools into
// validators the gateway checks call arguments against.
//
// Translate handles a single schema. ExtractFieldMap produces the
// per-argument form used when re-registering a backend tool: each declared
// property maps to a Validator, and properties missing from "required" are
// wrapped with Optional.
//
// The translation is intentionally lossy. Keywords without an equivalent
// (not, if/then/else, dependent schemas) accept any value.
package schemaconv
