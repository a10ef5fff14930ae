package types

import (
	"encoding/json"
	"fmt"
)

// Fields is the flat mapping view of a harvest record as it moves through the
// enrichment pipeline. Values are whatever a JSON decoder (or a typed record)
// produced; accessors check presence and primitive type.
type Fields map[string]any

// Lookup returns the raw value for key and whether it is present.
func (f Fields) Lookup(key string) (any, bool) {
	v, ok := f[key]
	return v, ok
}

// Require fails with INVALID_INPUT on the first key that is absent.
func (f Fields) Require(keys ...string) error {
	for _, k := range keys {
		if _, ok := f[k]; !ok {
			return NewInvalidInputError(k, "field is required")
		}
	}
	return nil
}

// Number returns the numeric value for key. Absent or non-numeric values fail
// with INVALID_INPUT.
func (f Fields) Number(key string) (float64, error) {
	v, ok := f[key]
	if !ok {
		return 0, NewInvalidInputError(key, "field is required")
	}
	n, ok := AsNumber(v)
	if !ok {
		return 0, NewInvalidInputError(key, fmt.Sprintf("expected a number, got %T", v))
	}
	return n, nil
}

// String returns the string value for key. Absent or non-string values fail
// with INVALID_INPUT.
func (f Fields) String(key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", NewInvalidInputError(key, "field is required")
	}
	s, ok := v.(string)
	if !ok {
		return "", NewInvalidInputError(key, fmt.Sprintf("expected a string, got %T", v))
	}
	return s, nil
}

// Merge returns a new mapping holding f overlaid with every other mapping in
// order. f itself is left untouched.
func (f Fields) Merge(others ...Fields) Fields {
	size := len(f)
	for _, o := range others {
		size += len(o)
	}
	out := make(Fields, size)
	for k, v := range f {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// AsNumber converts the numeric primitives a decoder or caller may produce
// into a float64. Booleans, strings, and nil are not numbers.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
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
