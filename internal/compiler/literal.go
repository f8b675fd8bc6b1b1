package compiler

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/roach88/ixgraph/internal/ir"
)

// normalizeRaw maps decoder-specific scalars (yaml ints, CUE big ints,
// json.Number) onto bool, int64, float64, string and []any.
func normalizeRaw(raw any) (any, error) {
	switch v := raw.(type) {
	case bool, string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	case *big.Int:
		if !v.IsInt64() {
			return nil, fmt.Errorf("integer %s overflows int64", v)
		}
		return v.Int64(), nil
	case *big.Float:
		f, _ := v.Float64()
		return f, nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		return v.Float64()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			n, err := normalizeRaw(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("null literal")
	}
	return nil, fmt.Errorf("unsupported literal %T", raw)
}

// inferValue picks a type for an untyped literal: bool, int, float, or a
// float vector/matrix by component count.
func inferValue(raw any) (ir.Value, error) {
	switch v := raw.(type) {
	case bool:
		return ir.Bool(v), nil
	case int64:
		return ir.Int(v), nil
	case float64:
		return ir.Float(v), nil
	case string:
		return ir.String(v), nil
	case []any:
		sig := ""
		switch len(v) {
		case 2:
			sig = ir.SigFloat2
		case 3:
			sig = ir.SigFloat3
		case 4:
			sig = ir.SigFloat4
		case 9:
			sig = ir.SigFloat3x3
		case 16:
			sig = ir.SigFloat4x4
		default:
			return nil, fmt.Errorf("cannot infer a type for a %d-component literal", len(v))
		}
		return ir.FromComponents(sig, v)
	}
	return nil, fmt.Errorf("unsupported literal %T", raw)
}

// literalValue converts an authoring literal to sig. An empty sig infers
// the type from the literal's shape.
func literalValue(raw any, sig string) (ir.Value, error) {
	if v, ok := raw.(ir.Value); ok {
		if sig == "" {
			return v, nil
		}
		if out, ok := ir.Convert(v, sig); ok {
			return out, nil
		}
		return nil, fmt.Errorf("cannot convert %s literal to %s", v.Signature(), sig)
	}

	norm, err := normalizeRaw(raw)
	if err != nil {
		return nil, err
	}
	if sig == "" {
		return inferValue(norm)
	}

	comps, isList := norm.([]any)
	if !isList {
		comps = []any{norm}
	}
	if v, err := ir.FromComponents(sig, comps); err == nil {
		return v, nil
	}
	inferred, err := inferValue(norm)
	if err != nil {
		return nil, err
	}
	if out, ok := ir.Convert(inferred, sig); ok {
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert %s literal to %s", inferred.Signature(), sig)
}

// configValue converts raw authoring configuration to a config signature.
func configValue(raw any, sig string) (ir.Value, error) {
	norm, err := normalizeRaw(raw)
	if err != nil {
		return nil, err
	}
	switch sig {
	case ir.SigType:
		s, ok := norm.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("type configuration must be a signature string")
		}
		return ir.String(s), nil
	case ir.SigString:
		s, ok := norm.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return ir.String(s), nil
	case ir.SigIntArray:
		list, ok := norm.([]any)
		if !ok {
			return nil, fmt.Errorf("want list of ints, got %T", raw)
		}
		return ir.FromComponents(ir.SigIntArray, list)
	}
	return literalValue(norm, sig)
}
