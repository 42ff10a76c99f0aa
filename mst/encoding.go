package mst

import (
	"context"
	"fmt"

	bf "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	cbor "github.com/ipfs/go-ipld-cbor"
	ipld "github.com/ipfs/go-ipld-format"
	"github.com/multiformats/go-multihash"
)

// NodeData is the serialization form of a tree node. The field names in
// the encoded map are all single characters.
type NodeData struct {
	// pointer to the sub-tree to the "left" of all entries (nullable; "l")
	Left *cid.Cid
	// ordered list of entries at this node ("e")
	Entries []EntryData
}

// EntryData is the serialization form of a single entry within a node's
// entry list. Keys are prefix-compressed against the previous entry.
type EntryData struct {
	// count of bytes shared with the previous key in this node ("p")
	PrefixLen int64
	// remainder of the key, appended to the shared prefix ("k")
	KeySuffix []byte
	// CID of the record value at this key ("v")
	Value cid.Cid
	// pointer to the sub-tree to the "right" of this entry (nullable; "t")
	Right *cid.Cid
}

// shapes this NodeData for canonical DAG-CBOR encoding. nullable CID
// fields are always present, as explicit nulls.
func (d *NodeData) asMap() map[string]any {
	entries := make([]any, len(d.Entries))
	for i, e := range d.Entries {
		ent := map[string]any{
			"p": e.PrefixLen,
			"k": e.KeySuffix,
			"v": e.Value,
		}
		if e.Right != nil {
			ent["t"] = *e.Right
		} else {
			ent["t"] = nil
		}
		entries[i] = ent
	}
	m := map[string]any{
		"e": entries,
	}
	if d.Left != nil {
		m["l"] = *d.Left
	} else {
		m["l"] = nil
	}
	return m
}

func asInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected an integer, got %T", raw)
	}
}

func asNullableCID(raw any) (*cid.Cid, error) {
	if raw == nil {
		return nil, nil
	}
	c, ok := raw.(cid.Cid)
	if !ok {
		return nil, fmt.Errorf("expected a CID link, got %T", raw)
	}
	return &c, nil
}

func nodeDataFromMap(m map[string]any) (*NodeData, error) {
	d := NodeData{}
	left, err := asNullableCID(m["l"])
	if err != nil {
		return nil, fmt.Errorf("%w: bad left pointer: %v", ErrInvalidTree, err)
	}
	d.Left = left

	rawEntries, ok := m["e"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: missing entry list", ErrInvalidTree)
	}
	d.Entries = make([]EntryData, len(rawEntries))
	for i, raw := range rawEntries {
		ent, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: malformed entry", ErrInvalidTree)
		}
		p, err := asInt64(ent["p"])
		if err != nil {
			return nil, fmt.Errorf("%w: bad prefix length: %v", ErrInvalidTree, err)
		}
		k, ok := ent["k"].([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: bad key suffix", ErrInvalidTree)
		}
		v, ok := ent["v"].(cid.Cid)
		if !ok {
			return nil, fmt.Errorf("%w: bad value pointer", ErrInvalidTree)
		}
		t, err := asNullableCID(ent["t"])
		if err != nil {
			return nil, fmt.Errorf("%w: bad right pointer: %v", ErrInvalidTree, err)
		}
		d.Entries[i] = EntryData{
			PrefixLen: p,
			KeySuffix: k,
			Value:     v,
			Right:     t,
		}
	}
	return &d, nil
}

// Bytes encodes this single node as canonical DAG-CBOR, returning the
// bytes and their CID. Does not recurse into or update children.
func (d *NodeData) Bytes() ([]byte, *cid.Cid, error) {
	b, err := cbor.DumpObject(d.asMap())
	if err != nil {
		return nil, nil, err
	}
	builder := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256)
	c, err := builder.Sum(b)
	if err != nil {
		return nil, nil, err
	}
	return b, &c, nil
}

// NodeDataFromCBOR parses a single serialized tree node.
func NodeDataFromCBOR(b []byte) (*NodeData, error) {
	var m map[string]any
	if err := cbor.DecodeInto(b, &m); err != nil {
		return nil, err
	}
	return nodeDataFromMap(m)
}

// NodeData flattens this node to its serialization form. Child entries
// must have CIDs computed already; will panic otherwise.
func (n *Node) NodeData() NodeData {
	d := NodeData{
		Left:    nil,
		Entries: []EntryData{},
	}

	prevKey := []byte{}
	for i, e := range n.Entries {
		if i == 0 && e.IsChild() {
			d.Left = e.ChildCID
			continue
		}
		if e.IsChild() {
			if len(d.Entries) == 0 {
				panic("malformed tree node: child without preceding value")
			}
			d.Entries[len(d.Entries)-1].Right = e.ChildCID
		}
		if e.IsValue() {
			idx := int64(CountPrefixLen(prevKey, e.Key))
			d.Entries = append(d.Entries, EntryData{
				PrefixLen: idx,
				KeySuffix: e.Key[idx:],
				Value:     *e.Value,
				Right:     nil,
			})
			prevKey = e.Key
		}
	}
	return d
}

// Node expands serialized node data back to the working representation,
// reconstructing full keys from their compressed form.
//
// c is the CID of the encoded node, if known. The height of a node with
// no value entries can not be determined locally and is left at -1; see
// ensureHeights.
func (d *NodeData) Node(c *cid.Cid) (Node, error) {
	height := -1
	n := Node{
		CID:     c,
		Dirty:   c == nil,
		Entries: make([]NodeEntry, 0, len(d.Entries)),
	}

	if d.Left != nil {
		n.Entries = append(n.Entries, NodeEntry{ChildCID: d.Left})
	}

	var prevKey []byte
	for _, e := range d.Entries {
		// the declared prefix must fit within the previous key
		if e.PrefixLen < 0 || e.PrefixLen > int64(len(prevKey)) {
			return Node{}, fmt.Errorf("%w: entry prefix length out of range: %d", ErrInvalidTree, e.PrefixLen)
		}
		key := []byte{}
		key = append(key, prevKey[:e.PrefixLen]...)
		key = append(key, e.KeySuffix...)
		n.Entries = append(n.Entries, NodeEntry{
			Key:   key,
			Value: &e.Value,
		})
		prevKey = key
		if height < 0 {
			height = HeightForKey(key)
		}

		if e.Right != nil {
			n.Entries = append(n.Entries, NodeEntry{
				ChildCID: e.Right,
			})
		}
	}

	n.Height = height
	return n, nil
}

// fills in heights on child nodes which could not determine their own
// height when loaded (nodes holding only child pointers)
func (n *Node) ensureHeights() {
	if n.Height < 0 {
		return
	}
	for _, e := range n.Entries {
		if e.Child != nil {
			if e.Child.Height < 0 {
				e.Child.Height = n.Height - 1
			}
			e.Child.ensureHeights()
		}
	}
}

// Recursively encodes the sub-tree, optionally writing blocks to the
// blockstore, and returns the root CID.
//
// bs may be nil, in which case blocks are only encoded (to compute
// CIDs), not stored. With onlyDirty set, clean sub-trees are skipped and
// their cached CIDs used as-is, so only the blocks touched since the
// last encoding get written.
func (n *Node) writeBlocks(ctx context.Context, bs blockstore.Blockstore, onlyDirty bool) (*cid.Cid, error) {
	if n == nil || n.Stub {
		return nil, fmt.Errorf("%w: nil or stub tree node", ErrInvalidTree)
	}
	if onlyDirty && !n.Dirty && n.CID != nil {
		return n.CID, nil
	}

	// walk children first
	for i, e := range n.Entries {
		if e.IsValue() && e.Dirty {
			n.Entries[i].Dirty = false
		}
		if !e.IsChild() {
			continue
		}
		if e.Child != nil && (e.Dirty || e.Child.Dirty || !onlyDirty) {
			cc, err := e.Child.writeBlocks(ctx, bs, onlyDirty)
			if err != nil {
				return nil, err
			}
			n.Entries[i].ChildCID = cc
			n.Entries[i].Dirty = false
		}
	}

	// then this node
	nd := n.NodeData()
	b, c, err := nd.Bytes()
	if err != nil {
		return nil, err
	}

	n.CID = c
	n.Dirty = false

	if bs != nil {
		blk, err := bf.NewBlockWithCid(b, *c)
		if err != nil {
			return nil, err
		}
		if err := bs.Put(ctx, blk); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// loadNodeFromStore reads a node and (recursively) any available
// children out of the blockstore. Missing children are left as CID-only
// references, producing a partial tree.
func loadNodeFromStore(ctx context.Context, bs blockstore.Blockstore, ref cid.Cid) (*Node, error) {
	block, err := bs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	nd, err := NodeDataFromCBOR(block.RawData())
	if err != nil {
		return nil, err
	}

	n, err := nd.Node(&ref)
	if err != nil {
		return nil, err
	}

	for i, e := range n.Entries {
		if e.IsChild() {
			child, err := loadNodeFromStore(ctx, bs, *e.ChildCID)
			if err != nil && ipld.IsNotFound(err) {
				// tolerate missing nodes; tree is partial
				continue
			}
			if err != nil {
				return nil, err
			}
			n.Entries[i].Child = child
			if n.Height < 0 && child.Height >= 0 {
				n.Height = child.Height + 1
			}
		}
	}

	return &n, nil
}
