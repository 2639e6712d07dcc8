// Package confval models the dynamic, tree-shaped documents (deployment
// configs, manifests, interfaces, types, error lists) that flow through
// the manager, and the scalar config-entry variant they bottom out in.
package confval

import "fmt"

// Kind tags the concrete type held by a Scalar.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// Scalar is a config entry value: one of string, integer, floating-point,
// or boolean. It is the tagged sum spec.md §9 calls for rather than a bare
// interface{}, so callers narrow the variant once, at construction time,
// instead of re-asserting types at every use site.
type Scalar struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
}

func String(v string) Scalar { return Scalar{kind: KindString, s: v} }
func Int(v int64) Scalar { return Scalar{kind: KindInt, i: v} }
func Float(v float64) Scalar { return Scalar{kind: KindFloat, f: v} }
func Bool(v bool) Scalar { return Scalar{kind: KindBool, b: v} }

func (s Scalar) Kind() Kind { return s.kind }

func (s Scalar) StringVal() (string, bool) {
	if s.kind != KindString {
		return "", false
	}
	return s.s, true
}

func (s Scalar) IntVal() (int64, bool) {
	if s.kind != KindInt {
		return 0, false
	}
	return s.i, true
}

func (s Scalar) FloatVal() (float64, bool) {
	if s.kind != KindFloat {
		return 0, false
	}
	return s.f, true
}

func (s Scalar) BoolVal() (bool, bool) {
	if s.kind != KindBool {
		return false, false
	}
	return s.b, true
}

// Any returns the value boxed as interface{}, for handing to encoders or
// JSON Schema validators that expect Go native types.
func (s Scalar) Any() any {
	switch s.kind {
	case KindString:
		return s.s
	case KindInt:
		return s.i
	case KindFloat:
		return s.f
	case KindBool:
		return s.b
	default:
		return nil
	}
}

// FromAny narrows a decoded YAML/JSON scalar into a Scalar. It returns an
// error if v is not one of the four supported scalar kinds.
func FromAny(v any) (Scalar, error) {
	switch t := v.(type) {
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float64:
		// encoding/json and yaml.v3 both decode unsuffixed integers as
		// float64/int depending on source; prefer integer narrowing when
		// the value has no fractional part, matching the variant's
		// string/int/float/bool split rather than collapsing int into
		// float.
		if t == float64(int64(t)) {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	default:
		return Scalar{}, fmt.Errorf("confval: unsupported scalar type %T", v)
	}
}

// Dict is a flat key/value config block (module-config or
// implementation-config), narrowed from a decoded tree node.
type Dict map[string]Scalar

// DictFromAny narrows a decoded mapping node into a Dict. A nil node
// yields an empty Dict; a non-scalar child is an error (schema validation
// normally rejects those earlier in the pipeline).
func DictFromAny(v any) (Dict, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return Dict{}, nil
		}
		return nil, fmt.Errorf("confval: expected mapping, got %T", v)
	}
	out := make(Dict, len(m))
	for k, raw := range m {
		sv, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("confval: key %q: %w", k, err)
		}
		out[k] = sv
	}
	return out, nil
}
