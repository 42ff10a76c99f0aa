package data

// ExtractBlobs returns all blob references found anywhere in the object,
// including nested maps and arrays.
func ExtractBlobs(obj map[string]any) []Blob {
	return extractBlobsAtom(obj)
}

func extractBlobsAtom(atom any) []Blob {
	switch v := atom.(type) {
	case Blob:
		return []Blob{v}
	case map[string]any:
		var out []Blob
		for _, val := range v {
			out = append(out, extractBlobsAtom(val)...)
		}
		return out
	case []any:
		var out []Blob
		for _, val := range v {
			out = append(out, extractBlobsAtom(val)...)
		}
		return out
	default:
		return nil
	}
}
