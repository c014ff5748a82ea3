package settings

// Merge folds src into dst and returns dst, allocating it when nil.
//
// Rule table, applied per key of src:
//
//	src value         dst value         result
//	---------------   ---------------   ------------------------------
//	object            object            recurse
//	object            anything else     deep copy of src value
//	array             anything          deep copy of src value (wholesale)
//	scalar or null    anything          src value
//
// Arrays are never concatenated or merged element-wise: clients send the
// complete list they want, and a shorter list must be able to remove items.
// Merge never fails; values of types it does not recognise are treated as
// scalars.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for key, incoming := range src {
		switch v := incoming.(type) {
		case map[string]any:
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = Merge(existing, v)
				continue
			}
			dst[key] = Merge(nil, v)
		case []any:
			dst[key] = cloneSlice(v)
		default:
			dst[key] = v
		}
	}
	return dst
}

// Clone returns a deep copy of an object. A nil input yields an empty object.
func Clone(obj map[string]any) map[string]any {
	return Merge(make(map[string]any, len(obj)), obj)
}

func cloneSlice(in []any) []any {
	out := make([]any, len(in))
	for i, v := range in {
		switch vv := v.(type) {
		case map[string]any:
			out[i] = Clone(vv)
		case []any:
			out[i] = cloneSlice(vv)
		default:
			out[i] = vv
		}
	}
	return out
}

// Truthy reports whether v counts as set: true, non-zero numbers, non-empty
// strings, and non-empty objects or arrays.
func Truthy(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != ""
	case float64:
		return vv != 0
	case float32:
		return vv != 0
	case int:
		return vv != 0
	case int64:
		return vv != 0
	case int32:
		return vv != 0
	case uint64:
		return vv != 0
	case map[string]any:
		return len(vv) > 0
	case []any:
		return len(vv) > 0
	default:
		return true
	}
}

// IsPrivate reports whether an entry has security.options.private set to a
// truthy value. Missing or mistyped intermediate keys mean not private.
func IsPrivate(entry map[string]any) bool {
	security, _ := entry["security"].(map[string]any)
	options, _ := security["options"].(map[string]any)
	return Truthy(options["private"])
}
