// Package flatten expands a nested JSON object into a single-level map
// whose keys are dot-joined paths into the original (§4.F).
package flatten

// Flatten projects doc into a flat map of dot-joined paths to scalar or
// array leaf values. Arrays are not expanded positionally: an array
// value is kept as-is under its own path, since its elements are not
// addressable sub-objects in the document model this pipeline works
// with. An empty nested object is kept as-is under its own path.
func Flatten(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, value interface{}) {
	obj, isObject := value.(map[string]interface{})
	if !isObject {
		if prefix != "" {
			out[prefix] = value
		}
		return
	}

	if len(obj) == 0 {
		if prefix != "" {
			out[prefix] = obj
		}
		return
	}

	for key, val := range obj {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := val.(map[string]interface{}); ok {
			flattenInto(out, path, nested)
		} else {
			out[path] = val
		}
	}
}
