package data

import (
	"encoding/json"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
)

// Validate checks that a generic object complies with the data model.
func Validate(obj map[string]any) error {
	_, err := normalizeObject(obj)
	return err
}

// UnmarshalJSON parses a generic object from JSON, validating against the
// data model and converting $link / $bytes / blob shapes to their wrapper
// types. Invert with the standard library's json.Marshal.
func UnmarshalJSON(b []byte) (map[string]any, error) {
	var rawObj map[string]any
	if err := json.Unmarshal(b, &rawObj); err != nil {
		return nil, err
	}
	return normalizeObject(rawObj)
}

// UnmarshalCBOR parses a generic object from DAG-CBOR, validating against
// the data model at the same time.
func UnmarshalCBOR(b []byte) (map[string]any, error) {
	var rawObj map[string]any
	if err := cbor.DecodeInto(b, &rawObj); err != nil {
		return nil, err
	}
	return normalizeObject(rawObj)
}

// MarshalCBOR serializes a generic object to canonical DAG-CBOR bytes.
//
// Does not re-validate data model restrictions, but handles the CIDLink,
// Bytes, and Blob wrapper types as expected.
func MarshalCBOR(obj map[string]any) ([]byte, error) {
	return cbor.DumpObject(forCBOR(obj))
}

// reshapes wrapper types in to what ipfs/go-ipld-cbor serializes correctly
func forCBOR(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		out[k] = atomForCBOR(val)
	}
	return out
}

func forCBORArray(arr []any) []any {
	out := make([]any, len(arr))
	for i, val := range arr {
		out[i] = atomForCBOR(val)
	}
	return out
}

func atomForCBOR(val any) any {
	switch v := val.(type) {
	case CIDLink:
		return cid.Cid(v)
	case Bytes:
		return []byte(v)
	case Blob:
		return map[string]any{
			"$type":    "blob",
			"mimeType": v.MimeType,
			"ref":      cid.Cid(v.Ref),
			"size":     v.Size,
		}
	case map[string]any:
		return forCBOR(v)
	case []any:
		return forCBORArray(v)
	default:
		return v
	}
}
