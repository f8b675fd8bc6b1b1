package ir

import "math"

// typeRank orders signatures for PreferType widening.
var typeRank = map[string]int{
	SigBool:   1,
	SigInt:    2,
	SigFloat:  3,
	SigFloat2: 4,
	SigFloat3: 5,
	SigFloat4: 6,
}

// PreferType returns the wider of two signatures when mixing operands:
// float4 > float3 > float2 > float > int > bool. Unranked signatures
// (matrices, custom) win only when equal; otherwise a is returned.
func PreferType(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a == b {
		return a
	}
	ra, okA := typeRank[a]
	rb, okB := typeRank[b]
	if !okA || !okB {
		return a
	}
	if rb > ra {
		return b
	}
	return a
}

// Convert coerces v to signature sig.
//
// Supported conversions:
//   - int <-> float (float to int rounds half away from zero)
//   - bool <-> int, bool <-> float (non-zero is true)
//   - scalar int/float/bool splat into float2/float3/float4
//   - float2 pads into float3/float4 with zeros; float3 pads into float4
//
// Returns false when no conversion exists.
func Convert(v Value, sig string) (Value, bool) {
	if v == nil {
		return nil, false
	}
	if v.Signature() == sig {
		return v, true
	}

	switch src := v.(type) {
	case Int:
		switch sig {
		case SigFloat:
			return Float(float64(src)), true
		case SigBool:
			return Bool(src != 0), true
		}
		if isVector(sig) {
			return splat(sig, float64(src)), true
		}
	case Float:
		switch sig {
		case SigInt:
			return Int(int64(math.Round(float64(src)))), true
		case SigBool:
			return Bool(src != 0 && !math.IsNaN(float64(src))), true
		}
		if isVector(sig) {
			return splat(sig, float64(src)), true
		}
	case Bool:
		f := 0.0
		if src {
			f = 1
		}
		switch sig {
		case SigInt:
			return Int(int64(f)), true
		case SigFloat:
			return Float(f), true
		}
		if isVector(sig) {
			return splat(sig, f), true
		}
	case Float2:
		switch sig {
		case SigFloat3:
			return Float3{src[0], src[1], 0}, true
		case SigFloat4:
			return Float4{src[0], src[1], 0, 0}, true
		}
	case Float3:
		if sig == SigFloat4 {
			return Float4{src[0], src[1], src[2], 0}, true
		}
	}
	return nil, false
}

func splat(sig string, f float64) Value {
	fs := make([]float64, ComponentCount(sig))
	for i := range fs {
		fs[i] = f
	}
	return floatsToValue(sig, fs)
}

// CanConvert reports whether a value of signature from coerces to to.
func CanConvert(from, to string) bool {
	if from == to {
		return true
	}
	_, ok := Convert(Default(from), to)
	return ok
}

func isVector(sig string) bool {
	return sig == SigFloat2 || sig == SigFloat3 || sig == SigFloat4
}
