package wire

import (
	"errors"
	"fmt"
	"math"
)

// Argument errors.
var (
	ErrMissingArgument = errors.New("missing argument")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ToInt converts a decoded CBOR number to int. Floats are accepted only
// when integral.
func ToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int, bool) {
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// ArgInt returns the integer argument name, or def when it is absent or nil.
func ArgInt(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := ToInt(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer, got %T", ErrInvalidArgument, name, v)
	}
	return n, nil
}

// RequireInt returns the integer argument name.
func RequireInt(args map[string]any, name string) (int, error) {
	if v, ok := args[name]; !ok || v == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	return ArgInt(args, name, 0)
}

// ArgOptionalBool returns the boolean argument name and whether it was
// given.
func ArgOptionalBool(args map[string]any, name string) (value, present bool, err error) {
	v, ok := args[name]
	if !ok || v == nil {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, true, fmt.Errorf("%w: %s must be a boolean, got %T", ErrInvalidArgument, name, v)
	}
	return b, true, nil
}

// ArgString returns the string argument name, or def when it is absent.
func ArgString(args map[string]any, name, def string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidArgument, name, v)
	}
	return s, nil
}
