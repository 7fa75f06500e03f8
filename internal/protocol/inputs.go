package protocol

// Typed accessors over the free-form input mapping. Inputs cross the
// dispatch boundary as map values, so readers decode defensively
// instead of panicking on a missing or mistyped key.

// StringInput returns the named input as a string, or fallback.
func (t TaskAssignment) StringInput(key, fallback string) string {
	if v, ok := t.Inputs[key].(string); ok {
		return v
	}
	return fallback
}

// StringsInput returns the named input as a string slice. A bare string
// is treated as a one-element slice.
func (t TaskAssignment) StringsInput(key string) []string {
	switch v := t.Inputs[key].(type) {
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IntInput returns the named input as an int, or fallback.
func (t TaskAssignment) IntInput(key string, fallback int) int {
	switch v := t.Inputs[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// BoolInput returns the named input as a bool, or fallback.
func (t TaskAssignment) BoolInput(key string, fallback bool) bool {
	if v, ok := t.Inputs[key].(bool); ok {
		return v
	}
	return fallback
}
