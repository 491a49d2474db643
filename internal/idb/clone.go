package idb

import (
	"strings"
	"time"
)

// cloneValue deep-copies a record value so that stored records never alias
// caller memory. Supported values are nil, booleans, numbers, strings,
// time.Time, []byte, []any and map[string]any (recursively). Anything else
// fails with DataCloneError.
func cloneValue(v any) (any, error) {
	return cloneDepth(v, 0)
}

func cloneDepth(v any, depth int) (any, error) {
	if depth > maxKeyDepth {
		return nil, NewError(DataCloneErr, "value nesting too deep")
	}

	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time:
		return val, nil
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			c, err := cloneDepth(elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			c, err := cloneDepth(elem, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	default:
		return nil, NewError(DataCloneErr, "%T cannot be cloned", v)
	}
}

// mustClone clones a value previously accepted by cloneValue.
func mustClone(v any) any {
	c, err := cloneValue(v)
	if err != nil {
		panic(err)
	}
	return c
}

// validKeyPath reports whether path is empty or a dotted path with no empty
// segments.
func validKeyPath(path string) bool {
	if path == "" {
		return true
	}
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

// extractKey evaluates a dotted key path against a value.
func extractKey(value any, keyPath string) (any, bool) {
	cur := value
	for _, part := range strings.Split(keyPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// canInjectKey reports whether injectKey can succeed on value.
func canInjectKey(value any, keyPath string) bool {
	parts := strings.Split(keyPath, ".")
	cur := value
	for _, part := range parts[:len(parts)-1] {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		next, ok := m[part]
		if !ok {
			return true
		}
		cur = next
	}
	_, ok := cur.(map[string]any)
	return ok
}

// injectKey writes key into value at keyPath, creating intermediate objects.
func injectKey(value any, keyPath string, key any) {
	parts := strings.Split(keyPath, ".")
	m := value.(map[string]any)
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = key
}
