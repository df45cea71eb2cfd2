package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Kind enumerates descriptor shapes
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindAny
	KindEnum
	KindOptional
	KindNullable
	KindArray
	KindObject
	KindEither
	KindRecursive
)

// String returns the kind name used in error messages
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindAny:
		return "any"
	case KindEnum:
		return "enum"
	case KindOptional:
		return "optional"
	case KindNullable:
		return "nullable"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindEither:
		return "either"
	case KindRecursive:
		return "recursive"
	default:
		return "unknown"
	}
}

// Fields describes the shape of an object
type Fields map[string]*Descriptor

// Descriptor is an immutable type description. Build descriptors once with
// the constructors below and share them freely.
type Descriptor struct {
	kind   Kind
	values []string
	elem   *Descriptor
	fields Fields
	keys   []string
	alts   []*Descriptor
}

var (
	// String accepts JSON strings
	String = &Descriptor{kind: KindString}
	// Number accepts any JSON number
	Number = &Descriptor{kind: KindNumber}
	// Boolean accepts true and false
	Boolean = &Descriptor{kind: KindBoolean}
	// Any accepts every value, including an absent field
	Any = &Descriptor{kind: KindAny}
)

// Enum accepts one of a closed set of strings
func Enum(values ...string) *Descriptor {
	return &Descriptor{kind: KindEnum, values: append([]string(nil), values...)}
}

// Optional accepts an absent field, null, or a value matching d
func Optional(d *Descriptor) *Descriptor {
	return &Descriptor{kind: KindOptional, elem: d}
}

// Nullable requires the field to be present but accepts null
func Nullable(d *Descriptor) *Descriptor {
	return &Descriptor{kind: KindNullable, elem: d}
}

// Array accepts a list whose every element matches d
func Array(d *Descriptor) *Descriptor {
	return &Descriptor{kind: KindArray, elem: d}
}

// Object accepts a map carrying at least the described fields. Unknown
// fields are tolerated.
func Object(fields Fields) *Descriptor {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Descriptor{kind: KindObject, fields: fields, keys: keys}
}

// Either accepts a value matching at least one alternative
func Either(alts ...*Descriptor) *Descriptor {
	return &Descriptor{kind: KindEither, alts: alts}
}

// Recursive builds a self-referential descriptor. build receives the
// descriptor being defined and returns its body.
func Recursive(build func(self *Descriptor) *Descriptor) *Descriptor {
	d := &Descriptor{kind: KindRecursive}
	d.elem = build(d)
	return d
}

// Kind reports the descriptor shape
func (d *Descriptor) Kind() Kind { return d.kind }

// Fields returns the object fields, or nil for non-object descriptors
func (d *Descriptor) Fields() Fields {
	if d.kind == KindRecursive {
		return d.elem.Fields()
	}
	return d.fields
}

// Extend returns a copy of an object descriptor with extra fields added.
// Non-object descriptors are returned unchanged.
func (d *Descriptor) Extend(extra Fields) *Descriptor {
	switch d.kind {
	case KindObject:
		merged := make(Fields, len(d.fields)+len(extra))
		for k, v := range d.fields {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		return Object(merged)
	case KindEither:
		alts := make([]*Descriptor, len(d.alts))
		for i, alt := range d.alts {
			alts[i] = alt.Extend(extra)
		}
		return Either(alts...)
	default:
		return d
	}
}

// Error reports the first mismatch found, qualified by its path
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

// Validate checks v against d. Values are expected in their decoded JSON
// form: map[string]any, []any, string, float64, bool and nil.
func Validate(d *Descriptor, v any) error {
	return validate(d, v, true, "")
}

// ValidateAt is Validate with a root path prefix for messages
func ValidateAt(root string, d *Descriptor, v any) error {
	return validate(d, v, true, root)
}

func validate(d *Descriptor, v any, present bool, path string) error {
	switch d.kind {
	case KindAny:
		return nil
	case KindOptional:
		if !present || v == nil {
			return nil
		}
		return validate(d.elem, v, true, path)
	case KindNullable:
		if !present {
			return &Error{Path: path, Reason: "missing required field"}
		}
		if v == nil {
			return nil
		}
		return validate(d.elem, v, true, path)
	case KindRecursive:
		return validate(d.elem, v, present, path)
	}

	if !present {
		return &Error{Path: path, Reason: "missing required field"}
	}

	switch d.kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return mismatch(path, "string", v)
		}
	case KindNumber:
		if !isNumber(v) {
			return mismatch(path, "number", v)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return mismatch(path, "boolean", v)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, "string", v)
		}
		for _, allowed := range d.values {
			if s == allowed {
				return nil
			}
		}
		return &Error{Path: path, Reason: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(d.values, ", "))}
	case KindArray:
		items, ok := v.([]any)
		if !ok {
			return mismatch(path, "array", v)
		}
		for i, item := range items {
			if err := validate(d.elem, item, true, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return mismatch(path, "object", v)
		}
		for _, key := range d.keys {
			val, has := obj[key]
			if err := validate(d.fields[key], val, has, join(path, key)); err != nil {
				return err
			}
		}
	case KindEither:
		for _, alt := range d.alts {
			if validate(alt, v, true, path) == nil {
				return nil
			}
		}
		return &Error{Path: path, Reason: fmt.Sprintf("value matches none of %d alternatives", len(d.alts))}
	}
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func mismatch(path, want string, got any) error {
	return &Error{Path: path, Reason: fmt.Sprintf("expected %s, got %s", want, typeName(got))}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if isNumber(v) {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
