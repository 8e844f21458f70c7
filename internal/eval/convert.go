package eval

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/dbgen/internal/ir"
)

// ToCount converts a fan-out count to a non-negative integer.
//
// Accepts Int and integral Real values. Negative, fractional, non-finite
// and non-numeric values fail with INVALID_COUNT at pos.
func ToCount(v ir.Value, pos ir.Pos) (int64, error) {
	switch val := v.(type) {
	case ir.Int:
		if val < 0 {
			return 0, ir.Errorf(ir.ErrCodeInvalidCount, pos, "count %d is negative", int64(val))
		}
		return int64(val), nil
	case ir.Real:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, ir.Errorf(ir.ErrCodeInvalidCount, pos, "count %v is not an integer", f)
		}
		if f < 0 {
			return 0, ir.Errorf(ir.ErrCodeInvalidCount, pos, "count %v is negative", f)
		}
		if f >= math.MaxInt64 {
			return 0, ir.Errorf(ir.ErrCodeInvalidCount, pos, "count %v is out of range", f)
		}
		return int64(f), nil
	default:
		return 0, ir.Errorf(ir.ErrCodeInvalidCount, pos, "count must be numeric, got %s", kindOf(v))
	}
}

func kindOf(v ir.Value) string {
	if v == nil {
		return "nothing"
	}
	return v.Kind().String()
}

// truthy interprets v as a condition. Null is false.
func truthy(v ir.Value, pos ir.Pos) (bool, error) {
	switch val := v.(type) {
	case ir.Null:
		return false, nil
	case ir.Int:
		return val != 0, nil
	case ir.Real:
		return val != 0, nil
	default:
		return false, ir.Errorf(ir.ErrCodeType, pos, "condition must be numeric, got %s", kindOf(v))
	}
}

// argInt requires an Int or an integral Real.
func argInt(name string, v ir.Value, pos ir.Pos) (int64, error) {
	switch val := v.(type) {
	case ir.Int:
		return int64(val), nil
	case ir.Real:
		f := float64(val)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), nil
		}
		return 0, ir.Errorf(ir.ErrCodeDomain, pos, "%s: %v is not an integer", name, f)
	default:
		return 0, ir.Errorf(ir.ErrCodeType, pos, "%s: expected int, got %s", name, kindOf(v))
	}
}

// argReal requires an Int or a Real.
func argReal(name string, v ir.Value, pos ir.Pos) (float64, error) {
	switch val := v.(type) {
	case ir.Int:
		return float64(val), nil
	case ir.Real:
		return float64(val), nil
	default:
		return 0, ir.Errorf(ir.ErrCodeType, pos, "%s: expected number, got %s", name, kindOf(v))
	}
}

// argText requires a Text.
func argText(name string, v ir.Value, pos ir.Pos) (string, error) {
	if t, ok := v.(ir.Text); ok {
		return string(t), nil
	}
	return "", ir.Errorf(ir.ErrCodeType, pos, "%s: expected text, got %s", name, kindOf(v))
}

// castInt implements to_int.
func castInt(v ir.Value, pos ir.Pos) (ir.Value, error) {
	switch val := v.(type) {
	case ir.Null, ir.Int:
		return v, nil
	case ir.Real:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, ir.Errorf(ir.ErrCodeDomain, pos, "to_int: %v out of range", f)
		}
		return ir.Int(int64(f)), nil
	case ir.Text:
		n, err := strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
		if err != nil {
			return nil, ir.Errorf(ir.ErrCodeDomain, pos, "to_int: cannot parse %q", string(val))
		}
		return ir.Int(n), nil
	case ir.Timestamp:
		return ir.Int(val.Time.Unix()), nil
	default:
		return nil, ir.Errorf(ir.ErrCodeType, pos, "to_int: unsupported %s", kindOf(v))
	}
}

// castReal implements to_real.
func castReal(v ir.Value, pos ir.Pos) (ir.Value, error) {
	switch val := v.(type) {
	case ir.Null, ir.Real:
		return v, nil
	case ir.Int:
		return ir.Real(float64(val)), nil
	case ir.Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		if err != nil {
			return nil, ir.Errorf(ir.ErrCodeDomain, pos, "to_real: cannot parse %q", string(val))
		}
		return ir.Real(f), nil
	default:
		return nil, ir.Errorf(ir.ErrCodeType, pos, "to_real: unsupported %s", kindOf(v))
	}
}
