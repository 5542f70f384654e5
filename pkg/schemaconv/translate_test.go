package schemaconv

import (
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeJSON(t *testing.T, src string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(src), &m))
	return m
}

func TestExtractFieldMapObjectRoundTrip(t *testing.T) {
	schema := decodeJSON(t, `{
		"type": "object",
		"properties": {
			"a": {"type": "string"},
			"b": {"type": "integer", "minimum": 0}
		},
		"required": ["a"]
	}`)

	fields := ExtractFieldMap(schema)
	require.Len(t, fields, 2)

	a := fields["a"]
	assert.False(t, IsOptional(a))
	assert.NoError(t, a.Validate("hello"))
	assert.Error(t, a.Validate(12.0))
	assert.Error(t, fields.Validate(map[string]any{}), "missing a must be rejected")

	b := fields["b"]
	assert.True(t, IsOptional(b))
	assert.NoError(t, fields.Validate(map[string]any{"a": "x"}))
	assert.NoError(t, b.Validate(0.0))
	assert.NoError(t, b.Validate(42.0))
	assert.Error(t, b.Validate(-1.0))
	assert.Error(t, b.Validate(1.5))
	assert.Error(t, b.Validate("3"))
}

func TestExtractFieldMapEmptySchema(t *testing.T) {
	fields := ExtractFieldMap(map[string]any{})
	assert.NotNil(t, fields)
	assert.Empty(t, fields)
	assert.NoError(t, fields.Validate(nil))
	assert.NoError(t, fields.Validate(map[string]any{"extra": true}))
}

func TestExtractFieldMapNonObjectSchemas(t *testing.T) {
	for name, schema := range map[string]any{
		"nil":    nil,
		"array":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"scalar": map[string]any{"type": "string"},
		"string": "object",
	} {
		t.Run(name, func(t *testing.T) {
			fields := ExtractFieldMap(schema)
			assert.NotNil(t, fields)
			assert.Empty(t, fields)
		})
	}
}

func TestExtractFieldMapPassesThroughFieldMaps(t *testing.T) {
	fm := FieldMap{"q": String{}}
	assert.Equal(t, fm, ExtractFieldMap(fm))

	plain := map[string]Validator{"n": Number{}}
	assert.Equal(t, FieldMap(plain), ExtractFieldMap(plain))

	loose := map[string]any{"flag": Boolean{}, "id": Optional(String{})}
	got := ExtractFieldMap(loose)
	require.Len(t, got, 2)
	assert.Equal(t, KindBoolean, got["flag"].Kind())
	assert.True(t, IsOptional(got["id"]))
}

func TestExtractFieldMapObjectWithoutProperties(t *testing.T) {
	fields := ExtractFieldMap(map[string]any{"type": "object"})
	assert.Empty(t, fields)
	assert.NoError(t, Translate(map[string]any{"type": "object"}).Validate(map[string]any{"anything": 1.0}))
}

func TestTranslateRulePriority(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		kind   Kind
	}{
		{name: "empty", schema: `{}`, kind: KindAny},
		{name: "oneOf beats type", schema: `{"type": "string", "oneOf": [{"type": "string"}, {"type": "number"}]}`, kind: KindUnion},
		{name: "anyOf", schema: `{"anyOf": [{"type": "boolean"}, {"type": "null"}]}`, kind: KindUnion},
		{name: "allOf", schema: `{"allOf": [{"type": "string"}, {"minLength": 2}]}`, kind: KindIntersection},
		{name: "not", schema: `{"not": {"type": "string"}, "type": "string"}`, kind: KindAny},
		{name: "enum", schema: `{"enum": ["a", "b"], "type": "string"}`, kind: KindLiteral},
		{name: "const", schema: `{"const": 3}`, kind: KindLiteral},
		{name: "string", schema: `{"type": "string"}`, kind: KindString},
		{name: "number", schema: `{"type": "number"}`, kind: KindNumber},
		{name: "integer", schema: `{"type": "integer"}`, kind: KindInteger},
		{name: "boolean", schema: `{"type": "boolean"}`, kind: KindBoolean},
		{name: "array", schema: `{"type": "array"}`, kind: KindArray},
		{name: "object", schema: `{"type": "object"}`, kind: KindObject},
		{name: "null", schema: `{"type": "null"}`, kind: KindNull},
		{name: "unknown type", schema: `{"type": "date"}`, kind: KindAny},
		{name: "type list", schema: `{"type": ["string", "null"]}`, kind: KindUnion},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Translate(json.RawMessage(tc.schema))
			assert.Equal(t, tc.kind, v.Kind())
		})
	}
}

func TestTranslateNonObjectInputs(t *testing.T) {
	for _, schema := range []any{nil, "string", 42, true, json.RawMessage(`[1,2]`), []byte("  ")} {
		assert.Equal(t, KindAny, Translate(schema).Kind())
	}
}

func TestTranslateAcceptsTypedSchema(t *testing.T) {
	minLen := 3
	v := Translate(&jsonschema.Schema{Type: "string", MinLength: &minLen})
	require.Equal(t, KindString, v.Kind())
	assert.Error(t, v.Validate("ab"))
	assert.NoError(t, v.Validate("abc"))
}

func TestUnionAndIntersectionSemantics(t *testing.T) {
	union := Translate(decodeJSON(t, `{"oneOf": [{"type": "string"}, {"type": "integer"}]}`))
	assert.NoError(t, union.Validate("x"))
	assert.NoError(t, union.Validate(4.0))
	assert.Error(t, union.Validate(true))

	both := Translate(decodeJSON(t, `{"allOf": [{"type": "string", "minLength": 2}, {"type": "string", "maxLength": 3}]}`))
	assert.NoError(t, both.Validate("abc"))
	assert.Error(t, both.Validate("a"))
	assert.Error(t, both.Validate("abcd"))
}

func TestLiteralValidators(t *testing.T) {
	enum := Translate(decodeJSON(t, `{"enum": ["red", "green", 1]}`))
	assert.NoError(t, enum.Validate("red"))
	assert.NoError(t, enum.Validate(1.0))
	assert.NoError(t, enum.Validate(1))
	assert.Error(t, enum.Validate("blue"))

	constant := Translate(decodeJSON(t, `{"const": "fixed"}`))
	assert.NoError(t, constant.Validate("fixed"))
	assert.EqualError(t, constant.Validate("other"), `expected "fixed"`)
}

func TestStringConstraints(t *testing.T) {
	v := Translate(decodeJSON(t, `{"type": "string", "minLength": 2, "maxLength": 4, "pattern": "^[a-z]+$"}`))
	assert.NoError(t, v.Validate("abc"))
	assert.Error(t, v.Validate("a"))
	assert.Error(t, v.Validate("abcde"))
	assert.Error(t, v.Validate("AB"))
	assert.Error(t, v.Validate(nil))

	badPattern := Translate(decodeJSON(t, `{"type": "string", "pattern": "(?<=x)y"}`))
	assert.NoError(t, badPattern.Validate("anything"))
}

func TestStringFormats(t *testing.T) {
	tests := []struct {
		format string
		good   string
		bad    string
	}{
		{format: "email", good: "dev@example.com", bad: "not-an-email"},
		{format: "uri", good: "https://example.com/path", bad: "no scheme here"},
		{format: "date", good: "2024-02-29", bad: "2024-13-01"},
		{format: "date-time", good: "2024-02-29T10:11:12Z", bad: "2024-02-29 10:11"},
		{format: "uuid", good: "7d444840-9dc0-11d1-b245-5ffdce74fad2", bad: "1234"},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			v := Translate(map[string]any{"type": "string", "format": tc.format})
			assert.NoError(t, v.Validate(tc.good))
			assert.Error(t, v.Validate(tc.bad))
		})
	}

	unknown := Translate(map[string]any{"type": "string", "format": "hostname"})
	assert.NoError(t, unknown.Validate("%%% not checked %%%"))
}

func TestNumberBounds(t *testing.T) {
	v := Translate(decodeJSON(t, `{"type": "number", "minimum": 1.5, "maximum": 10}`))
	assert.NoError(t, v.Validate(1.5))
	assert.NoError(t, v.Validate(10))
	assert.Error(t, v.Validate(1.4))
	assert.Error(t, v.Validate(10.01))
	assert.Error(t, v.Validate("5"))
	assert.NoError(t, v.Validate(json.Number("2.5")))
}

func TestArrayAndNestedObjectPaths(t *testing.T) {
	v := Translate(decodeJSON(t, `{
		"type": "object",
		"properties": {
			"tags": {"type": "array", "items": {"type": "string"}},
			"owner": {
				"type": "object",
				"properties": {"name": {"type": "string"}},
				"required": ["name"]
			}
		},
		"required": ["tags"]
	}`))

	require.NoError(t, v.Validate(decodeJSON(t, `{"tags": ["a", "b"], "owner": {"name": "x"}}`)))

	err := v.Validate(decodeJSON(t, `{"tags": ["a", 2]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tags[1]: expected string")

	err = v.Validate(decodeJSON(t, `{"tags": [], "owner": {}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner.name: required")

	assert.Error(t, v.Validate([]any{}))
	assert.NoError(t, Translate(map[string]any{"type": "array"}).Validate([]any{1.0, "two", nil}))
}

func TestBooleanAndNull(t *testing.T) {
	assert.NoError(t, Boolean{}.Validate(false))
	assert.Error(t, Boolean{}.Validate("false"))
	assert.NoError(t, Null{}.Validate(nil))
	assert.Error(t, Null{}.Validate(0.0))
}

func TestOptionalHelpers(t *testing.T) {
	opt := Optional(String{})
	assert.Equal(t, KindOptional, opt.Kind())
	assert.Equal(t, opt, Optional(opt))
	assert.Equal(t, KindString, Unwrap(opt).Kind())
	assert.Equal(t, KindString, Unwrap(String{}).Kind())
	assert.Equal(t, KindAny, Unwrap(Optional(nil)).Kind())
	assert.Equal(t, "optional", KindOptional.String())
}
