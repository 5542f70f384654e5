package schemaconv

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"
)

// Translate converts a JSON Schema into a Validator. schema may be a
// *jsonschema.Schema, raw JSON, or any value that marshals to a JSON object
// (typically a decoded map[string]any). Anything that is not a JSON object
// yields Any.
//
// Rules apply in order: oneOf, anyOf, allOf, not, enum, const, then type.
// oneOf is treated like anyOf; not is not representable and yields Any.
// Unknown string formats, unparsable patterns and unknown types are ignored.
func Translate(schema any) Validator {
	s, ok := decode(schema)
	if !ok {
		return Any{}
	}
	return translate(s)
}

// ExtractFieldMap returns the per-argument validators of an object schema.
// A value that already is a field map is returned as is. Schemas that do not
// describe an object yield an empty field map.
func ExtractFieldMap(schema any) FieldMap {
	switch v := schema.(type) {
	case FieldMap:
		return v
	case map[string]Validator:
		return FieldMap(v)
	case map[string]any:
		if fm, ok := asFieldMap(v); ok {
			return fm
		}
	}
	if obj, ok := Translate(schema).(Object); ok && obj.Fields != nil {
		return obj.Fields
	}
	return FieldMap{}
}

func asFieldMap(m map[string]any) (FieldMap, bool) {
	if len(m) == 0 {
		return nil, false
	}
	fm := make(FieldMap, len(m))
	for name, value := range m {
		v, ok := value.(Validator)
		if !ok {
			return nil, false
		}
		fm[name] = v
	}
	return fm, true
}

func decode(schema any) (*jsonschema.Schema, bool) {
	var raw []byte
	switch v := schema.(type) {
	case nil:
		return nil, false
	case *jsonschema.Schema:
		return v, v != nil
	case jsonschema.Schema:
		return &v, true
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		raw = b
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func translate(s *jsonschema.Schema) Validator {
	if s == nil {
		return Any{}
	}
	switch {
	case len(s.OneOf) > 0:
		return union(s.OneOf)
	case len(s.AnyOf) > 0:
		return union(s.AnyOf)
	case len(s.AllOf) > 0:
		parts := make([]Validator, 0, len(s.AllOf))
		for _, branch := range s.AllOf {
			parts = append(parts, translate(branch))
		}
		if len(parts) == 1 {
			return parts[0]
		}
		return Intersection{Parts: parts}
	case s.Not != nil:
		return Any{}
	case s.Enum != nil:
		return Literal{Values: append([]any(nil), s.Enum...)}
	case s.Const != nil:
		return Literal{Values: []any{*s.Const}}
	}

	if len(s.Types) > 0 {
		options := make([]Validator, 0, len(s.Types))
		for _, typ := range s.Types {
			options = append(options, byType(s, typ))
		}
		if len(options) == 1 {
			return options[0]
		}
		return Union{Options: options}
	}
	return byType(s, s.Type)
}

func union(branches []*jsonschema.Schema) Validator {
	options := make([]Validator, 0, len(branches))
	for _, branch := range branches {
		options = append(options, translate(branch))
	}
	if len(options) == 1 {
		return options[0]
	}
	return Union{Options: options}
}

func byType(s *jsonschema.Schema, typ string) Validator {
	switch typ {
	case "string":
		v := String{MinLength: s.MinLength, MaxLength: s.MaxLength, Format: s.Format}
		if s.Pattern != "" {
			if re, err := regexp.Compile(s.Pattern); err == nil {
				v.Pattern = re
			}
		}
		return v
	case "number", "integer":
		return Number{Integer: typ == "integer", Minimum: s.Minimum, Maximum: s.Maximum}
	case "boolean":
		return Boolean{}
	case "array":
		if s.Items != nil {
			return Array{Items: translate(s.Items)}
		}
		return Array{Items: Any{}}
	case "object":
		fields := make(FieldMap, len(s.Properties))
		if s.Properties == nil {
			return Object{Fields: fields}
		}
		required := make(map[string]bool, len(s.Required))
		for _, name := range s.Required {
			required[name] = true
		}
		for name, prop := range s.Properties {
			v := translate(prop)
			if !required[name] {
				v = Optional(v)
			}
			fields[name] = v
		}
		return Object{Fields: fields}
	case "null":
		return Null{}
	default:
		return Any{}
	}
}
