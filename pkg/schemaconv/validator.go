package schemaconv

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Kind identifies the shape a Validator checks.
type Kind int

const (
	KindAny Kind = iota
	KindUnion
	KindIntersection
	KindLiteral
	KindString
	KindNumber
	KindInteger
	KindBoolean
	KindArray
	KindObject
	KindNull
	KindOptional
)

var kindNames = [...]string{
	KindAny:          "any",
	KindUnion:        "union",
	KindIntersection: "intersection",
	KindLiteral:      "literal",
	KindString:       "string",
	KindNumber:       "number",
	KindInteger:      "integer",
	KindBoolean:      "boolean",
	KindArray:        "array",
	KindObject:       "object",
	KindNull:         "null",
	KindOptional:     "optional",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Validator accepts or rejects decoded JSON values (nil, bool, float64,
// string, []any, map[string]any; other Go numbers are accepted as numbers).
type Validator interface {
	Kind() Kind
	Validate(value any) error
}

// ValidationError locates a rejected value. Path is empty for the root,
// otherwise dotted field names with [i] for array elements.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

func fail(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func withPath(err error, segment string) error {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Path: segment, Message: err.Error()}
	}
	path := segment
	if ve.Path != "" {
		if ve.Path[0] == '[' {
			path += ve.Path
		} else {
			path += "." + ve.Path
		}
	}
	return &ValidationError{Path: path, Message: ve.Message}
}

// Any accepts every value.
type Any struct{}

func (Any) Kind() Kind         { return KindAny }
func (Any) Validate(any) error { return nil }

// Union accepts a value matching at least one option.
type Union struct {
	Options []Validator
}

func (Union) Kind() Kind { return KindUnion }

func (u Union) Validate(value any) error {
	if len(u.Options) == 0 {
		return nil
	}
	for _, opt := range u.Options {
		if opt.Validate(value) == nil {
			return nil
		}
	}
	return fail("value does not match any of %d alternatives", len(u.Options))
}

// Intersection accepts a value matching every part.
type Intersection struct {
	Parts []Validator
}

func (Intersection) Kind() Kind { return KindIntersection }

func (in Intersection) Validate(value any) error {
	for _, part := range in.Parts {
		if err := part.Validate(value); err != nil {
			return err
		}
	}
	return nil
}

// Literal accepts values equal to one of Values.
type Literal struct {
	Values []any
}

func (Literal) Kind() Kind { return KindLiteral }

func (l Literal) Validate(value any) error {
	for _, want := range l.Values {
		if jsonEqual(want, value) {
			return nil
		}
	}
	if len(l.Values) == 1 {
		return fail("expected %s", describe(l.Values[0]))
	}
	return fail("expected one of %s", describe(l.Values))
}

// String accepts strings within the configured constraints.
type String struct {
	MinLength *int
	MaxLength *int
	Pattern   *regexp.Regexp
	// Format is one of email, uri, date, date-time or uuid. Other values are
	// not checked.
	Format string
}

func (String) Kind() Kind { return KindString }

var validate = validator.New()

var formatTags = map[string]string{
	"email":     "email",
	"uri":       "url",
	"date":      "datetime=2006-01-02",
	"date-time": "datetime=2006-01-02T15:04:05Z07:00",
	"uuid":      "uuid",
}

func (s String) Validate(value any) error {
	str, ok := value.(string)
	if !ok {
		return fail("expected string, got %s", typeName(value))
	}
	n := utf8.RuneCountInString(str)
	if s.MinLength != nil && n < *s.MinLength {
		return fail("string shorter than %d characters", *s.MinLength)
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		return fail("string longer than %d characters", *s.MaxLength)
	}
	if s.Pattern != nil && !s.Pattern.MatchString(str) {
		return fail("string does not match pattern %q", s.Pattern.String())
	}
	if tag, ok := formatTags[s.Format]; ok {
		if err := validate.Var(str, tag); err != nil {
			return fail("string is not a valid %s", s.Format)
		}
	}
	return nil
}

// Number accepts numbers, whole numbers only when Integer is set.
type Number struct {
	Integer bool
	Minimum *float64
	Maximum *float64
}

func (n Number) Kind() Kind {
	if n.Integer {
		return KindInteger
	}
	return KindNumber
}

func (n Number) Validate(value any) error {
	f, ok := toFloat(value)
	if !ok {
		return fail("expected %s, got %s", n.Kind(), typeName(value))
	}
	if n.Integer && (math.IsInf(f, 0) || f != math.Trunc(f)) {
		return fail("expected integer, got %v", f)
	}
	if n.Minimum != nil && f < *n.Minimum {
		return fail("must be >= %v", *n.Minimum)
	}
	if n.Maximum != nil && f > *n.Maximum {
		return fail("must be <= %v", *n.Maximum)
	}
	return nil
}

// Boolean accepts true and false.
type Boolean struct{}

func (Boolean) Kind() Kind { return KindBoolean }

func (Boolean) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fail("expected boolean, got %s", typeName(value))
	}
	return nil
}

// Null accepts only null.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

func (Null) Validate(value any) error {
	if value != nil {
		return fail("expected null, got %s", typeName(value))
	}
	return nil
}

// Array accepts sequences whose elements all satisfy Items.
type Array struct {
	Items Validator
}

func (Array) Kind() Kind { return KindArray }

func (a Array) Validate(value any) error {
	if value == nil {
		return fail("expected array, got null")
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fail("expected array, got %s", typeName(value))
	}
	if a.Items == nil {
		return nil
	}
	for i := 0; i < rv.Len(); i++ {
		if err := a.Items.Validate(rv.Index(i).Interface()); err != nil {
			return withPath(err, "["+strconv.Itoa(i)+"]")
		}
	}
	return nil
}

// Object accepts JSON objects whose declared fields validate. Undeclared
// fields are accepted.
type Object struct {
	Fields FieldMap
}

func (Object) Kind() Kind { return KindObject }

func (o Object) Validate(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return fail("expected object, got %s", typeName(value))
	}
	return o.Fields.Validate(m)
}

// FieldMap maps argument names to validators. Fields wrapped with Optional
// may be absent; all others are required.
type FieldMap map[string]Validator

// Validate checks args against the field map.
func (fm FieldMap) Validate(args map[string]any) error {
	names := make([]string, 0, len(fm))
	for name := range fm {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		v := fm[name]
		value, present := args[name]
		if !present {
			if !IsOptional(v) {
				errs = append(errs, &ValidationError{Path: name, Message: "required"})
			}
			continue
		}
		if v == nil {
			continue
		}
		if err := v.Validate(value); err != nil {
			errs = append(errs, withPath(err, name))
		}
	}
	return errors.Join(errs...)
}

type optional struct {
	inner Validator
}

// Optional marks a field validator as not required.
func Optional(v Validator) Validator {
	if v == nil {
		v = Any{}
	}
	if IsOptional(v) {
		return v
	}
	return optional{inner: v}
}

// IsOptional reports whether v was produced by Optional.
func IsOptional(v Validator) bool {
	_, ok := v.(optional)
	return ok
}

// Unwrap returns the validator wrapped by Optional, or v itself.
func Unwrap(v Validator) Validator {
	if o, ok := v.(optional); ok {
		return o.inner
	}
	return v
}

func (optional) Kind() Kind { return KindOptional }

func (o optional) Validate(value any) error { return o.inner.Validate(value) }

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func jsonEqual(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA || okB {
		return okA && okB && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(value); ok {
		return "number"
	}
	return fmt.Sprintf("%T", value)
}

func describe(value any) string {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}
