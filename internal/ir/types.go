package ir

import (
	"github.com/roach88/gqlc/internal/schema"
)

// Compatible reports whether a value of type got may be used where want is
// expected. String and ID interchange; everything else must match exactly.
func Compatible(want, got schema.Type) bool {
	if want.List != got.List {
		return false
	}
	if want.Kind == got.Kind {
		return true
	}
	return isText(want.Kind) && isText(got.Kind)
}

func isText(k schema.ScalarKind) bool {
	return k == schema.String || k == schema.ID
}

// LiteralAssignable reports whether literal v can stand for a value of type
// t. Date, DateTime and Decimal literals are written as strings; Int
// literals may stand for Float and Decimal.
func LiteralAssignable(v Value, t schema.Type) bool {
	if l, ok := v.(List); ok {
		if !t.List {
			return false
		}
		for _, e := range l {
			if !LiteralAssignable(e, t.Elem()) {
				return false
			}
		}
		return true
	}
	if t.List {
		return false
	}
	switch v.(type) {
	case String:
		switch t.Kind {
		case schema.String, schema.ID, schema.Date, schema.DateTime, schema.Decimal:
			return true
		}
	case Int:
		switch t.Kind {
		case schema.Int, schema.Float, schema.Decimal:
			return true
		}
	case Bool:
		return t.Kind == schema.Boolean
	}
	return false
}

// NativeAssignable reports whether a Go value supplied as a parameter
// binding fits type t. Unlike literals, parameters may carry floats.
func NativeAssignable(v any, t schema.Type) bool {
	if t.List {
		switch l := v.(type) {
		case []any:
			for _, e := range l {
				if !NativeAssignable(e, t.Elem()) {
					return false
				}
			}
			return true
		case []string:
			return NativeAssignable("", t.Elem())
		case []int64:
			return NativeAssignable(int64(0), t.Elem())
		case []int:
			return NativeAssignable(0, t.Elem())
		case List:
			return LiteralAssignable(l, t)
		}
		return false
	}
	switch v.(type) {
	case string, String:
		switch t.Kind {
		case schema.String, schema.ID, schema.Date, schema.DateTime, schema.Decimal:
			return true
		}
	case int, int32, int64, uint32, Int:
		switch t.Kind {
		case schema.Int, schema.Float, schema.Decimal:
			return true
		}
	case float32, float64:
		return t.Kind == schema.Float || t.Kind == schema.Decimal
	case bool, Bool:
		return t.Kind == schema.Boolean
	}
	return false
}
