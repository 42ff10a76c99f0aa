package data

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/ipfs/go-cid"
)

func normalizeFloat(f float64) (int64, error) {
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("number is not a safe integer: %f", f)
	}
	return int64(f), nil
}

// normalizeAtom maps a raw decoded value on to the data model, rejecting
// anything not representable. This is the single enforcement point for the
// "no floats, no oversized strings" rules.
func normalizeAtom(atom any) (any, error) {
	switch v := atom.(type) {
	case nil:
		return v, nil
	case bool:
		return v, nil
	case *bool:
		return *v, nil
	case int64:
		return v, nil
	case *int64:
		return *v, nil
	case int:
		return int64(v), nil
	case *int:
		return int64(*v), nil
	case uint64:
		if v > MAX_SAFE_INTEGER {
			return nil, fmt.Errorf("integer too large: %d", v)
		}
		return int64(v), nil
	case float64:
		return normalizeFloat(v)
	case *float64:
		return normalizeFloat(*v)
	case string:
		if len(v) > MAX_RECORD_STRING_LEN {
			return nil, fmt.Errorf("string too long: %d", len(v))
		}
		return v, nil
	case *string:
		return normalizeAtom(*v)
	case cid.Cid:
		return CIDLink(v), nil
	case *cid.Cid:
		return CIDLink(*v), nil
	case CIDLink:
		return v, nil
	case []byte:
		return Bytes(v), nil
	case *[]byte:
		return Bytes(*v), nil
	case Bytes:
		return v, nil
	case Blob:
		return v, nil
	case []any:
		return normalizeArray(v)
	case *[]any:
		return normalizeArray(*v)
	case map[string]any:
		return normalizeMap(v)
	case *map[string]any:
		return normalizeMap(*v)
	case encoding.TextMarshaler:
		s, err := v.MarshalText()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal text (%s): %w", reflect.TypeOf(v), err)
		}
		return string(s), nil
	default:
		return nil, fmt.Errorf("unexpected type: %s", reflect.TypeOf(v))
	}
}

func normalizeArray(l []any) ([]any, error) {
	if len(l) > MAX_CBOR_CONTAINER_LEN {
		return nil, fmt.Errorf("data array too long: %d", len(l))
	}
	out := make([]any, len(l))
	for i, v := range l {
		a, err := normalizeAtom(v)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func normalizeMap(obj map[string]any) (any, error) {
	if len(obj) > MAX_CBOR_CONTAINER_LEN {
		return nil, fmt.Errorf("data object has too many fields: %d", len(obj))
	}
	if _, ok := obj["$link"]; ok {
		return normalizeLink(obj)
	}
	if _, ok := obj["$bytes"]; ok {
		return normalizeBytes(obj)
	}
	if typeVal, ok := obj["$type"]; ok {
		typeStr, ok := typeVal.(string)
		if !ok || typeStr == "" {
			return nil, fmt.Errorf("$type field must contain a non-empty string")
		}
		if typeStr == "blob" {
			return normalizeBlob(obj)
		}
	}
	// legacy blob shape: exactly {"cid": ..., "mimeType": ...}
	if len(obj) == 2 {
		if _, ok := obj["mimeType"]; ok {
			if _, ok := obj["cid"]; ok {
				return normalizeLegacyBlob(obj)
			}
		}
	}
	out := make(map[string]any, len(obj))
	for k, val := range obj {
		if len(k) > MAX_OBJECT_KEY_LEN {
			return nil, fmt.Errorf("data object key too long: %d", len(k))
		}
		atom, err := normalizeAtom(val)
		if err != nil {
			return nil, err
		}
		out[k] = atom
	}
	return out, nil
}

func normalizeLink(obj map[string]any) (CIDLink, error) {
	var zero CIDLink
	if len(obj) != 1 {
		return zero, fmt.Errorf("$link objects must have a single field")
	}
	v, ok := obj["$link"].(string)
	if !ok {
		return zero, fmt.Errorf("$link field missing or not a string")
	}
	c, err := cid.Parse(v)
	if err != nil {
		return zero, fmt.Errorf("invalid $link CID: %w", err)
	}
	if !c.Defined() {
		return zero, fmt.Errorf("undefined (null) CID in $link")
	}
	return CIDLink(c), nil
}

func normalizeBytes(obj map[string]any) (Bytes, error) {
	if len(obj) != 1 {
		return nil, fmt.Errorf("$bytes objects must have a single field")
	}
	v, ok := obj["$bytes"].(string)
	if !ok {
		return nil, fmt.Errorf("$bytes field missing or not a string")
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("decoding $bytes value: %w", err)
	}
	return Bytes(b), nil
}

func normalizeBlob(obj map[string]any) (Blob, error) {
	var zero Blob
	if len(obj) != 4 {
		return zero, fmt.Errorf("blobs expected to have 4 fields")
	}
	var size int64
	var err error
	switch v := obj["size"].(type) {
	case int:
		size = int64(v)
	case int64:
		size = v
	case uint64:
		size = int64(v)
	case float64:
		size, err = normalizeFloat(v)
		if err != nil {
			return zero, err
		}
	default:
		return zero, fmt.Errorf("blob 'size' missing or not a number")
	}
	mimeType, ok := obj["mimeType"].(string)
	if !ok {
		return zero, fmt.Errorf("blob 'mimeType' missing or not a string")
	}
	rawRef, ok := obj["ref"]
	if !ok {
		return zero, fmt.Errorf("blob 'ref' missing")
	}
	var ref CIDLink
	switch v := rawRef.(type) {
	case map[string]any:
		cl, err := normalizeLink(v)
		if err != nil {
			return zero, err
		}
		ref = cl
	case cid.Cid:
		ref = CIDLink(v)
	case CIDLink:
		ref = v
	default:
		return zero, fmt.Errorf("blob 'ref' has unexpected type")
	}
	return Blob{Size: size, MimeType: mimeType, Ref: ref}, nil
}

func normalizeLegacyBlob(obj map[string]any) (Blob, error) {
	var zero Blob
	mimeType, ok := obj["mimeType"].(string)
	if !ok {
		return zero, fmt.Errorf("blob 'mimeType' missing or not a string")
	}
	c, err := cid.Parse(obj["cid"])
	if err != nil {
		return zero, fmt.Errorf("invalid CID in legacy blob: %w", err)
	}
	return Blob{Size: -1, MimeType: mimeType, Ref: CIDLink(c)}, nil
}

func normalizeObject(obj map[string]any) (map[string]any, error) {
	out, err := normalizeMap(obj)
	if err != nil {
		return nil, err
	}
	if outObj, ok := out.(map[string]any); ok {
		return outObj, nil
	}
	return nil, fmt.Errorf("top-level datum was not an object")
}
