package data

import (
	"encoding/json"
	"testing"

	"github.com/cobalt-social/cobalt/syntax"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
)

func TestSimpleValidation(t *testing.T) {
	assert := assert.New(t)

	s := "a string"
	assert.NoError(Validate(map[string]any{
		"a": 5,
		"b": 123,
		"c": s,
		"d": &s,
	}))
	assert.NoError(Validate(map[string]any{
		"$type": "com.example.thing",
		"a":     5,
	}))
	assert.Error(Validate(map[string]any{
		"$type": 123,
		"a":     5,
	}))
	assert.Error(Validate(map[string]any{
		"$type": "",
		"a":     5,
	}))
	assert.Error(Validate(map[string]any{
		"a": 3.5,
	}))
	assert.NoError(Validate(map[string]any{
		"a": float64(42),
	}))
}

func TestSyntaxSerialize(t *testing.T) {
	assert := assert.New(t)

	obj := map[string]any{
		"did":       syntax.DID("did:web:example.com"),
		"nsid":      syntax.NSID("com.example.blah"),
		"recordkey": syntax.RecordKey("self"),
		"tid":       syntax.TID("3kao2cl6lyj2p"),
	}
	assert.NoError(Validate(obj))
	_, err := MarshalCBOR(obj)
	assert.NoError(err)
	_, err = json.Marshal(obj)
	assert.NoError(err)
}

func TestJSONRoundTrip(t *testing.T) {
	assert := assert.New(t)

	jsonStr := `{
		"$type": "com.example.post",
		"text": "hello",
		"count": 42,
		"flag": true,
		"empty": null,
		"link": {"$link": "bafyreidfayvfuwqa7qlnopdjiqrxzs6blmoeu4rujcjtnci5beludirz2a"},
		"raw": {"$bytes": "nFERjvLLiw9qm45JrqH9QTzyC2Lu1Xb4ne6+sBrCzI0"},
		"nested": {"arr": [1, 2, 3]}
	}`
	obj, err := UnmarshalJSON([]byte(jsonStr))
	assert.NoError(err)

	_, isLink := obj["link"].(CIDLink)
	assert.True(isLink)
	_, isBytes := obj["raw"].(Bytes)
	assert.True(isBytes)

	out, err := json.Marshal(obj)
	assert.NoError(err)
	obj2, err := UnmarshalJSON(out)
	assert.NoError(err)
	assert.Equal(obj, obj2)
}

func TestCBORRoundTrip(t *testing.T) {
	assert := assert.New(t)

	c, err := cid.Parse("bafyreidfayvfuwqa7qlnopdjiqrxzs6blmoeu4rujcjtnci5beludirz2a")
	assert.NoError(err)
	obj := map[string]any{
		"$type": "com.example.thing",
		"str":   "value",
		"int":   int64(-42),
		"link":  CIDLink(c),
		"raw":   Bytes([]byte{0x01, 0x02, 0x03}),
		"blob": Blob{
			Ref:      CIDLink(c),
			MimeType: "image/png",
			Size:     123,
		},
		"list": []any{int64(1), "two", nil},
	}
	b, err := MarshalCBOR(obj)
	assert.NoError(err)

	obj2, err := UnmarshalCBOR(b)
	assert.NoError(err)
	assert.Equal(obj, obj2)

	// canonical: re-encoding parsed data yields identical bytes
	b2, err := MarshalCBOR(obj2)
	assert.NoError(err)
	assert.Equal(b, b2)
}

func TestFloatRejection(t *testing.T) {
	assert := assert.New(t)

	_, err := UnmarshalJSON([]byte(`{"v": 3.14}`))
	assert.Error(err)
	_, err = UnmarshalJSON([]byte(`{"v": 3.0}`))
	assert.NoError(err)
}

func TestLegacyBlob(t *testing.T) {
	assert := assert.New(t)

	jsonStr := `{
		"pic": {
			"cid": "bafkreiccldh766hwcnuxnf2wh6jgzepf2nlu2lvcllt63eww5p6chi4ity",
			"mimeType": "image/jpeg"
		}
	}`
	obj, err := UnmarshalJSON([]byte(jsonStr))
	assert.NoError(err)
	blb, ok := obj["pic"].(Blob)
	assert.True(ok)
	assert.Equal(int64(-1), blb.Size)
	assert.Equal("image/jpeg", blb.MimeType)
}

func TestExtractBlobs(t *testing.T) {
	assert := assert.New(t)

	cid1, _ := cid.Parse("bafkreiccldh766hwcnuxnf2wh6jgzepf2nlu2lvcllt63eww5p6chi4ity")
	obj := map[string]any{
		"a": 5,
		"b": 123,
		"c": map[string]any{
			"blb": Blob{
				Size:     567,
				MimeType: "image/jpeg",
				Ref:      CIDLink(cid1),
			},
		},
		"d": []any{
			123,
			Blob{
				Size:     123,
				MimeType: "image/png",
				Ref:      CIDLink(cid1),
			},
		},
	}
	blbs := ExtractBlobs(obj)
	assert.Equal(2, len(blbs))
}
