package ir

import (
	"encoding/json"
	"fmt"
	"math"
)

// Built-in type signatures. These are the socket types a graph can carry.
const (
	SigBool     = "bool"
	SigInt      = "int"
	SigFloat    = "float"
	SigFloat2   = "float2"
	SigFloat3   = "float3"
	SigFloat4   = "float4"
	SigFloat2x2 = "float2x2"
	SigFloat3x3 = "float3x3"
	SigFloat4x4 = "float4x4"
)

// Configuration-only signatures. They never appear in the types table.
const (
	SigString   = "string"
	SigIntArray = "int[]"
	SigType     = "type" // a String holding another signature
)

// BuiltinSignatures lists the socket signatures in their canonical order.
var BuiltinSignatures = []string{
	SigBool, SigInt, SigFloat,
	SigFloat2, SigFloat3, SigFloat4,
	SigFloat2x2, SigFloat3x3, SigFloat4x4,
}

// IsBuiltin reports whether sig is one of BuiltinSignatures.
func IsBuiltin(sig string) bool {
	return ComponentCount(sig) > 0
}

// IsConfigOnly reports whether sig may only appear in node configuration.
func IsConfigOnly(sig string) bool {
	return sig == SigString || sig == SigIntArray || sig == SigType
}

// IsFloatKind reports whether sig is a float scalar, vector or matrix.
func IsFloatKind(sig string) bool {
	switch sig {
	case SigFloat, SigFloat2, SigFloat3, SigFloat4, SigFloat2x2, SigFloat3x3, SigFloat4x4:
		return true
	}
	return false
}

// ComponentCount returns the fixed component count of a built-in signature,
// or 0 when the signature has no fixed arity.
func ComponentCount(sig string) int {
	switch sig {
	case SigBool, SigInt, SigFloat:
		return 1
	case SigFloat2:
		return 2
	case SigFloat3:
		return 3
	case SigFloat4, SigFloat2x2:
		return 4
	case SigFloat3x3:
		return 9
	case SigFloat4x4:
		return 16
	}
	return 0
}

// Value is a sealed interface over typed literal values.
// Every Value serializes as an array of components.
type Value interface {
	Signature() string
	Components() []any
	value() // Sealed
}

// Bool is a boolean value.
type Bool bool

// Int is an integer value.
type Int int64

// Float is a scalar float value.
type Float float64

// Float2 is a two-component vector.
type Float2 [2]float64

// Float3 is a three-component vector.
type Float3 [3]float64

// Float4 is a four-component vector. Rotations are stored as (x, y, z, w).
type Float4 [4]float64

// Float2x2 is a 2x2 matrix in column-major order.
type Float2x2 [4]float64

// Float3x3 is a 3x3 matrix in column-major order.
type Float3x3 [9]float64

// Float4x4 is a 4x4 matrix in column-major order.
type Float4x4 [16]float64

// String is a configuration-only string value.
type String string

// IntArray is a configuration-only integer list (e.g. switch cases).
type IntArray []int64

// Custom carries a value of a non-built-in type as raw scalar components.
// Items hold only bool, int64, float64 or string.
type Custom struct {
	Sig   string
	Items []any
}

func (Bool) value()     {}
func (Int) value()      {}
func (Float) value()    {}
func (Float2) value()   {}
func (Float3) value()   {}
func (Float4) value()   {}
func (Float2x2) value() {}
func (Float3x3) value() {}
func (Float4x4) value() {}
func (String) value()   {}
func (IntArray) value() {}
func (Custom) value()   {}

func (Bool) Signature() string     { return SigBool }
func (Int) Signature() string      { return SigInt }
func (Float) Signature() string    { return SigFloat }
func (Float2) Signature() string   { return SigFloat2 }
func (Float3) Signature() string   { return SigFloat3 }
func (Float4) Signature() string   { return SigFloat4 }
func (Float2x2) Signature() string { return SigFloat2x2 }
func (Float3x3) Signature() string { return SigFloat3x3 }
func (Float4x4) Signature() string { return SigFloat4x4 }
func (String) Signature() string   { return SigString }
func (IntArray) Signature() string { return SigIntArray }
func (c Custom) Signature() string { return c.Sig }

func (v Bool) Components() []any  { return []any{bool(v)} }
func (v Int) Components() []any   { return []any{int64(v)} }
func (v Float) Components() []any { return []any{float64(v)} }

func (v Float2) Components() []any   { return floatComponents(v[:]) }
func (v Float3) Components() []any   { return floatComponents(v[:]) }
func (v Float4) Components() []any   { return floatComponents(v[:]) }
func (v Float2x2) Components() []any { return floatComponents(v[:]) }
func (v Float3x3) Components() []any { return floatComponents(v[:]) }
func (v Float4x4) Components() []any { return floatComponents(v[:]) }

func (v String) Components() []any { return []any{string(v)} }

func (v IntArray) Components() []any {
	out := make([]any, len(v))
	for i, n := range v {
		out[i] = n
	}
	return out
}

func (c Custom) Components() []any {
	out := make([]any, len(c.Items))
	copy(out, c.Items)
	return out
}

func floatComponents(fs []float64) []any {
	out := make([]any, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

// Default returns the default value for a signature.
// Numeric types default to zero, bool to false.
func Default(sig string) Value {
	switch sig {
	case SigBool:
		return Bool(false)
	case SigInt:
		return Int(0)
	case SigFloat:
		return Float(0)
	case SigFloat2:
		return Float2{}
	case SigFloat3:
		return Float3{}
	case SigFloat4:
		return Float4{}
	case SigFloat2x2:
		return Float2x2{}
	case SigFloat3x3:
		return Float3x3{}
	case SigFloat4x4:
		return Float4x4{}
	case SigString, SigType:
		return String("")
	case SigIntArray:
		return IntArray{}
	}
	return Custom{Sig: sig}
}

// FromComponents builds a Value of signature sig from its wire components.
// Components may be bool, string, int, int64, float64 or json.Number.
func FromComponents(sig string, comps []any) (Value, error) {
	if n := ComponentCount(sig); n > 0 && len(comps) != n {
		return nil, fmt.Errorf("%s expects %d components, got %d", sig, n, len(comps))
	}

	switch sig {
	case SigBool:
		b, ok := comps[0].(bool)
		if !ok {
			return nil, fmt.Errorf("bool component must be a boolean, got %T", comps[0])
		}
		return Bool(b), nil
	case SigInt:
		n, err := componentInt(comps[0])
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case SigFloat:
		f, err := componentFloat(comps[0])
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case SigFloat2, SigFloat3, SigFloat4, SigFloat2x2, SigFloat3x3, SigFloat4x4:
		fs := make([]float64, len(comps))
		for i, c := range comps {
			f, err := componentFloat(c)
			if err != nil {
				return nil, fmt.Errorf("component %d: %w", i, err)
			}
			fs[i] = f
		}
		return floatsToValue(sig, fs), nil
	case SigString, SigType:
		if len(comps) != 1 {
			return nil, fmt.Errorf("%s expects 1 component, got %d", sig, len(comps))
		}
		s, ok := comps[0].(string)
		if !ok {
			return nil, fmt.Errorf("string component must be a string, got %T", comps[0])
		}
		return String(s), nil
	case SigIntArray:
		arr := make(IntArray, len(comps))
		for i, c := range comps {
			n, err := componentInt(c)
			if err != nil {
				return nil, fmt.Errorf("component %d: %w", i, err)
			}
			arr[i] = n
		}
		return arr, nil
	}

	items := make([]any, len(comps))
	for i, c := range comps {
		switch cv := c.(type) {
		case bool, string, int64, float64:
			items[i] = cv
		case int:
			items[i] = int64(cv)
		case json.Number:
			if n, err := cv.Int64(); err == nil {
				items[i] = n
			} else if f, err := cv.Float64(); err == nil {
				items[i] = f
			} else {
				return nil, fmt.Errorf("component %d: invalid number %q", i, cv)
			}
		default:
			return nil, fmt.Errorf("component %d: unsupported %T in custom value", i, c)
		}
	}
	return Custom{Sig: sig, Items: items}, nil
}

// floatsToValue packs fs into the float type named by sig.
// fs must already have the right length.
func floatsToValue(sig string, fs []float64) Value {
	switch sig {
	case SigFloat:
		return Float(fs[0])
	case SigFloat2:
		return Float2(fs)
	case SigFloat3:
		return Float3(fs)
	case SigFloat4:
		return Float4(fs)
	case SigFloat2x2:
		return Float2x2(fs)
	case SigFloat3x3:
		return Float3x3(fs)
	case SigFloat4x4:
		return Float4x4(fs)
	}
	panic(fmt.Sprintf("floatsToValue: not a float signature: %s", sig))
}

// FloatsToValue is the exported form of floatsToValue with a length check.
func FloatsToValue(sig string, fs []float64) (Value, error) {
	if !IsFloatKind(sig) || ComponentCount(sig) != len(fs) {
		return nil, fmt.Errorf("cannot pack %d floats into %s", len(fs), sig)
	}
	return floatsToValue(sig, fs), nil
}

func componentInt(c any) (int64, error) {
	switch v := c.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("int component must be integral, got %v", v)
		}
		return int64(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("int component: %w", err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("int component must be a number, got %T", c)
}

func componentFloat(c any) (float64, error) {
	switch v := c.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("float component: %w", err)
		}
		return f, nil
	}
	return 0, fmt.Errorf("float component must be a number, got %T", c)
}

// Floats returns the float components of a float-kind value.
func Floats(v Value) ([]float64, bool) {
	switch t := v.(type) {
	case Float:
		return []float64{float64(t)}, true
	case Float2:
		return t[:], true
	case Float3:
		return t[:], true
	case Float4:
		return t[:], true
	case Float2x2:
		return t[:], true
	case Float3x3:
		return t[:], true
	case Float4x4:
		return t[:], true
	}
	return nil, false
}

// Equal reports whether two values have the same signature and components.
// NaN components compare equal to each other.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Signature() != b.Signature() {
		return false
	}
	ac, bc := a.Components(), b.Components()
	if len(ac) != len(bc) {
		return false
	}
	for i := range ac {
		af, aIsF := ac[i].(float64)
		bf, bIsF := bc[i].(float64)
		if aIsF && bIsF {
			if af != bf && !(math.IsNaN(af) && math.IsNaN(bf)) {
				return false
			}
			continue
		}
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}

// Format renders a value for log interpolation.
// Scalars print bare; vectors and matrices print as (a, b, ...).
func Format(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case Bool:
		return fmt.Sprintf("%t", bool(t))
	case Int:
		return fmt.Sprintf("%d", int64(t))
	case Float:
		return formatFloat(float64(t))
	case String:
		return string(t)
	}
	comps := v.Components()
	out := "("
	for i, c := range comps {
		if i > 0 {
			out += ", "
		}
		if f, ok := c.(float64); ok {
			out += formatFloat(f)
		} else {
			out += fmt.Sprint(c)
		}
	}
	return out + ")"
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
