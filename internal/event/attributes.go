package event

import (
	"encoding/json"
	"math"
	"strconv"
)

// Attributes is an immutable view over an event payload. Every accessor
// reports presence instead of failing, so predicates can probe keys that
// unrelated event kinds never carry.
type Attributes struct {
	m map[string]any
}

// NewAttributes deep-copies data so later mutation of the source map cannot
// leak into an Event.
func NewAttributes(data map[string]any) Attributes {
	if len(data) == 0 {
		return Attributes{}
	}
	return Attributes{m: copyMap(data)}
}

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = copyValue(v)
	}
	return dst
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}

// Len returns the number of top-level keys.
func (a Attributes) Len() int { return len(a.m) }

// Has reports whether key is present, whatever its value.
func (a Attributes) Has(key string) bool {
	_, ok := a.m[key]
	return ok
}

// Raw returns the untyped value stored under key. Nested maps and slices are
// copies.
func (a Attributes) Raw(key string) (any, bool) {
	v, ok := a.m[key]
	if !ok {
		return nil, false
	}
	return copyValue(v), true
}

// String returns the value under key when it is a string.
func (a Attributes) String(key string) (string, bool) {
	s, ok := a.m[key].(string)
	return s, ok
}

// Bool returns the value under key when it is a boolean.
func (a Attributes) Bool(key string) (bool, bool) {
	b, ok := a.m[key].(bool)
	return b, ok
}

// Int returns the value under key when it is an integral number. JSON numbers
// decode as float64; fractional values are rejected. Numeric strings are
// accepted since the API is inconsistent about quoting ids.
func (a Attributes) Int(key string) (int64, bool) {
	switch v := a.m[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Map returns a nested object as Attributes.
func (a Attributes) Map(key string) (Attributes, bool) {
	m, ok := a.m[key].(map[string]any)
	if !ok {
		return Attributes{}, false
	}
	return Attributes{m: m}, true
}

// Strings returns a list value whose items are all strings.
func (a Attributes) Strings(key string) ([]string, bool) {
	raw, ok := a.m[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Keys returns the top-level keys in unspecified order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a.m))
	for k := range a.m {
		keys = append(keys, k)
	}
	return keys
}
