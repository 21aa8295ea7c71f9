package nodeflow

import "fmt"

// Params is the per-visit parameter set of a unit. It is distinct from the
// shared value and never mutated by the runtime once handed to a unit.
type Params map[string]any

// Clone returns a shallow copy. The clone of a nil set is an empty set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a new set holding p overlaid by every set in overrides, later
// sets winning. Neither p nor the overrides are modified.
func (p Params) Merge(overrides ...Params) Params {
	out := p.Clone()
	for _, o := range overrides {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// Get returns the raw value stored under key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns the value under key formatted as a string, or "" when unset.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float returns the numeric value under key, accepting any Go number type.
func (p Params) Float(key string) (float64, bool) {
	return ToFloat(p[key])
}

// Param returns the value under key asserted to T.
func Param[T any](p Params, key string) (T, bool) {
	v, ok := p[key]
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// ToFloat converts the numeric kinds produced by YAML/JSON decoding and Go
// literals into a float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
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
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
