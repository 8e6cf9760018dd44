package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a sealed interface for literal values that appear in filters and
// recursion depths. Only String, Int, Bool and List implement it.
// There is no float and no null: float literals are rejected by the
// validator, and absence is tested with is_null.
type Value interface {
	irValue()
}

// String is a string literal.
type String string

func (String) irValue() {}

// Int is an integer literal. Always int64.
type Int int64

func (Int) irValue() {}

// Bool is a boolean literal.
type Bool bool

func (Bool) irValue() {}

// List is a list literal.
type List []Value

func (List) irValue() {}

// Native converts a Value to the Go value handed to database drivers.
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Native(e)
		}
		return out
	default:
		return nil
	}
}

// FromNative converts a decoded Go value (from YAML, JSON or flags) to a
// Value. Floats and nil are rejected.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid literal")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not valid literals: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not valid literals: %v", val)
	case []any:
		out := make(List, len(val))
		for i, e := range val {
			ev, err := FromNative(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case []string:
		out := make(List, len(val))
		for i, e := range val {
			out[i] = String(e)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %T", v)
	}
}

// ParseValueJSON decodes a JSON literal into a Value, rejecting floats.
func ParseValueJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromNative(raw)
}

// FormatValue renders a Value the way it would be written in a query.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case String:
		b, _ := json.Marshal(string(val))
		return string(b)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case List:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
