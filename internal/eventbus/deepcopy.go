package eventbus

// deepCopy clones a JSON-shaped value (the only shapes diagnostics/workspace
// payloads ever take: maps, slices, and scalars) so a listener mutating what
// it received cannot affect another listener or the publisher's own copy
// (spec.md §4.7).
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopy(inner)
		}
		return out
	case []any:
		return deepCopySlice(val)
	default:
		return val
	}
}

func deepCopySlice(s []any) []any {
	if s == nil {
		return nil
	}
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = deepCopy(v)
	}
	return out
}
