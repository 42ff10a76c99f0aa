package repo

import (
	"fmt"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/multiformats/go-multihash"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/syntax"
)

// Commit is the signed object at the root of a repository: it binds
// the account DID and the current revision to the root of the record
// tree, under the account's signing key.
type Commit struct {
	DID     string
	Version int64
	Prev    *cid.Cid
	Data    cid.Cid
	Sig     []byte
	Rev     string
}

// asMap returns the canonical DAG-CBOR structure of the commit. The
// "prev" field is always included (as an explicit null when empty):
// dropping it would change the signed bytes. The "sig" field is
// entirely omitted from the unsigned form.
func (c *Commit) asMap(includeSig bool) map[string]any {
	obj := map[string]any{
		"did":     c.DID,
		"version": c.Version,
		"data":    c.Data,
		"rev":     c.Rev,
	}
	if c.Prev != nil {
		obj["prev"] = *c.Prev
	} else {
		obj["prev"] = nil
	}
	if includeSig {
		obj["sig"] = c.Sig
	}
	return obj
}

// UnsignedBytes returns the canonical DAG-CBOR serialization of the
// commit with the signature omitted. These are the bytes that get
// signed and verified.
func (c *Commit) UnsignedBytes() ([]byte, error) {
	b, err := cbor.DumpObject(c.asMap(false))
	if err != nil {
		return nil, fmt.Errorf("encoding unsigned commit: %w", err)
	}
	return b, nil
}

// Bytes returns the complete canonical DAG-CBOR serialization of the
// signed commit, and the corresponding CID.
func (c *Commit) Bytes() ([]byte, *cid.Cid, error) {
	b, err := cbor.DumpObject(c.asMap(true))
	if err != nil {
		return nil, nil, fmt.Errorf("encoding commit: %w", err)
	}
	builder := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)
	cc, err := builder.Sum(b)
	if err != nil {
		return nil, nil, err
	}
	return b, &cc, nil
}

// CommitFromCBOR parses a commit object from DAG-CBOR bytes.
func CommitFromCBOR(b []byte) (*Commit, error) {
	obj := make(map[string]any)
	if err := cbor.DecodeInto(b, &obj); err != nil {
		return nil, fmt.Errorf("parsing commit object: %w", err)
	}

	var c Commit
	var ok bool
	if c.DID, ok = obj["did"].(string); !ok {
		return nil, fmt.Errorf("commit object missing field: did")
	}
	if c.Rev, ok = obj["rev"].(string); !ok {
		return nil, fmt.Errorf("commit object missing field: rev")
	}
	if c.Version, ok = commitInt64(obj["version"]); !ok {
		return nil, fmt.Errorf("commit object missing field: version")
	}
	if c.Data, ok = obj["data"].(cid.Cid); !ok {
		return nil, fmt.Errorf("commit object missing field: data")
	}
	if c.Sig, ok = obj["sig"].([]byte); !ok {
		return nil, fmt.Errorf("commit object missing field: sig")
	}
	prevVal, present := obj["prev"]
	if !present {
		return nil, fmt.Errorf("commit object missing field: prev")
	}
	if prevVal != nil {
		prev, ok := prevVal.(cid.Cid)
		if !ok {
			return nil, fmt.Errorf("commit object prev field is not a link")
		}
		c.Prev = &prev
	}
	return &c, nil
}

func commitInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// VerifyStructure checks the commit fields for syntactic validity,
// without checking the signature itself.
func (c *Commit) VerifyStructure() error {
	if c.Version != RepoVersion {
		return fmt.Errorf("%w: unsupported repo version: %d", ErrBadCommit, c.Version)
	}
	if len(c.Sig) == 0 {
		return fmt.Errorf("%w: empty signature", ErrBadCommit)
	}
	if _, err := syntax.ParseDID(c.DID); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommit, err)
	}
	if _, err := syntax.ParseTID(c.Rev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommit, err)
	}
	return nil
}

// Sign serializes the unsigned fields and stores a new signature on
// the commit, replacing any existing signature.
func (c *Commit) Sign(privkey crypto.PrivateKey) error {
	b, err := c.UnsignedBytes()
	if err != nil {
		return err
	}
	sig, err := privkey.HashAndSign(b)
	if err != nil {
		return err
	}
	c.Sig = sig
	return nil
}

// VerifySignature checks the commit signature against the given public
// key. Returns nil if the signature is valid.
func (c *Commit) VerifySignature(pubkey crypto.PublicKey) error {
	if len(c.Sig) == 0 {
		return fmt.Errorf("can not verify unsigned commit")
	}
	b, err := c.UnsignedBytes()
	if err != nil {
		return err
	}
	return pubkey.HashAndVerify(b, c.Sig)
}
