package data

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
)

// CIDLink is the data model "link" type: a reference to another
// content-addressed object. Encodes as a CBOR tag in DAG-CBOR, and as a
// {"$link": "..."} object in JSON.
type CIDLink cid.Cid

type jsonLink struct {
	Link string `json:"$link"`
}

func (ll CIDLink) CID() cid.Cid {
	return cid.Cid(ll)
}

func (ll CIDLink) String() string {
	return cid.Cid(ll).String()
}

func (ll CIDLink) Defined() bool {
	return cid.Cid(ll).Defined()
}

func (ll CIDLink) MarshalJSON() ([]byte, error) {
	if !ll.Defined() {
		return nil, fmt.Errorf("tried to marshal nil or undefined cid-link")
	}
	return json.Marshal(jsonLink{Link: ll.String()})
}

func (ll *CIDLink) UnmarshalJSON(raw []byte) error {
	var jl jsonLink
	if err := json.Unmarshal(raw, &jl); err != nil {
		return fmt.Errorf("parsing cid-link JSON: %v", err)
	}
	c, err := cid.Decode(jl.Link)
	if err != nil {
		return fmt.Errorf("parsing cid-link CID: %v", err)
	}
	*ll = CIDLink(c)
	return nil
}

func (ll *CIDLink) MarshalCBOR(w io.Writer) error {
	if ll == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	if !ll.Defined() {
		return fmt.Errorf("tried to marshal nil or undefined cid-link")
	}
	cw := cbg.NewCborWriter(w)
	if err := cbg.WriteCid(cw, cid.Cid(*ll)); err != nil {
		return fmt.Errorf("failed to write cid-link as CBOR: %w", err)
	}
	return nil
}

func (ll *CIDLink) UnmarshalCBOR(r io.Reader) error {
	cr := cbg.NewCborReader(r)
	c, err := cbg.ReadCid(cr)
	if err != nil {
		return fmt.Errorf("failed to read cid-link from CBOR: %w", err)
	}
	*ll = CIDLink(c)
	return nil
}

// Bytes is the data model "bytes" type: a raw byte array. Encodes as a
// CBOR byte string, and as a {"$bytes": "..."} object (base64, no padding)
// in JSON.
type Bytes []byte

type jsonBytes struct {
	Bytes string `json:"$bytes"`
}

func (lb Bytes) MarshalJSON() ([]byte, error) {
	if lb == nil {
		return nil, fmt.Errorf("tried to marshal nil $bytes")
	}
	return json.Marshal(jsonBytes{
		Bytes: base64.RawStdEncoding.EncodeToString([]byte(lb)),
	})
}

func (lb *Bytes) UnmarshalJSON(raw []byte) error {
	var jb jsonBytes
	if err := json.Unmarshal(raw, &jb); err != nil {
		return fmt.Errorf("parsing $bytes JSON: %v", err)
	}
	out, err := base64.RawStdEncoding.DecodeString(jb.Bytes)
	if err != nil {
		return fmt.Errorf("parsing $bytes base64: %v", err)
	}
	*lb = Bytes(out)
	return nil
}

func (lb *Bytes) MarshalCBOR(w io.Writer) error {
	if lb == nil {
		_, err := w.Write(cbg.CborNull)
		return err
	}
	cw := cbg.NewCborWriter(w)
	if err := cbg.WriteByteArray(cw, ([]byte)(*lb)); err != nil {
		return fmt.Errorf("failed to write $bytes as CBOR: %w", err)
	}
	return nil
}

func (lb *Bytes) UnmarshalCBOR(r io.Reader) error {
	cr := cbg.NewCborReader(r)
	b, err := cbg.ReadByteArray(cr, MAX_RECORD_BYTES_LEN)
	if err != nil {
		return fmt.Errorf("failed to read $bytes from CBOR: %w", err)
	}
	*lb = Bytes(b)
	return nil
}

// Blob is the data model type for references to uploaded files (images,
// media). A "legacy" blob, with no size and a string CID, is represented
// with Size == -1.
type Blob struct {
	Ref      CIDLink
	MimeType string
	Size     int64
}

type jsonBlob struct {
	Type     string  `json:"$type"`
	Ref      CIDLink `json:"ref"`
	MimeType string  `json:"mimeType"`
	Size     int64   `json:"size"`
}

type jsonLegacyBlob struct {
	Cid      string `json:"cid"`
	MimeType string `json:"mimeType"`
}

func (b Blob) MarshalJSON() ([]byte, error) {
	if b.Size < 0 {
		return json.Marshal(jsonLegacyBlob{
			Cid:      b.Ref.String(),
			MimeType: b.MimeType,
		})
	}
	return json.Marshal(jsonBlob{
		Type:     "blob",
		Ref:      b.Ref,
		MimeType: b.MimeType,
		Size:     b.Size,
	})
}

func (b *Blob) UnmarshalJSON(raw []byte) error {
	var probe struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return fmt.Errorf("parsing blob type: %v", err)
	}
	if probe.Type == "blob" {
		var jb jsonBlob
		if err := json.Unmarshal(raw, &jb); err != nil {
			return fmt.Errorf("parsing blob JSON: %v", err)
		}
		if jb.Size < 0 {
			return fmt.Errorf("parsing blob: negative size: %d", jb.Size)
		}
		b.Ref = jb.Ref
		b.MimeType = jb.MimeType
		b.Size = jb.Size
		return nil
	}
	var legacy jsonLegacyBlob
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return fmt.Errorf("parsing legacy blob: %v", err)
	}
	refCid, err := cid.Decode(legacy.Cid)
	if err != nil {
		return fmt.Errorf("parsing CID in legacy blob: %v", err)
	}
	b.Ref = CIDLink(refCid)
	b.MimeType = legacy.MimeType
	b.Size = -1
	return nil
}
