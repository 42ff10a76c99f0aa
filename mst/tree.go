package mst

import (
	"context"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
)

var ErrPartialTree = errors.New("MST is not complete")

var ErrInvalidKey = errors.New("bytestring not a valid MST key")

var ErrInvalidTree = errors.New("invalid MST structure")

// Tree wraps the root node of a Merkle Search Tree. The zero value is
// not usable; construct with NewEmptyTree, NewTreeFromMap, or one of the
// load functions.
type Tree struct {
	Root *Node
}

func NewEmptyTree() *Tree {
	return &Tree{
		Root: &Node{
			Dirty:  true,
			Height: 0,
		},
	}
}

// NewTreeFromMap builds a tree out of a full set of key/value pairs. The
// resulting structure is the same regardless of map iteration order.
func NewTreeFromMap(m map[string]cid.Cid) (*Tree, error) {
	if m == nil {
		return nil, fmt.Errorf("un-initialized map as an argument")
	}
	t := NewEmptyTree()
	for key, val := range m {
		if _, err := t.Insert([]byte(key), val); err != nil {
			return nil, fmt.Errorf("unexpected failure to build MST structure: %w", err)
		}
	}
	return t, nil
}

// LoadTreeFromStore reads the tree with the given root CID out of the
// blockstore. Missing nodes are tolerated and result in a partial tree.
func LoadTreeFromStore(ctx context.Context, bs blockstore.Blockstore, root cid.Cid) (*Tree, error) {
	n, err := loadNodeFromStore(ctx, bs, root)
	if err != nil {
		return nil, err
	}
	n.ensureHeights()
	return &Tree{Root: n}, nil
}

// Insert adds a key/CID entry to the tree, returning the previous value
// if the key already existed.
//
// Inserting the exact key/value already present is a no-op, and returns
// val as the previous value.
func (t *Tree) Insert(key []byte, val cid.Cid) (*cid.Cid, error) {
	if !IsValidKey(key) {
		return nil, ErrInvalidKey
	}
	root, prev, err := t.Root.insert(key, val, -1)
	if err != nil {
		return nil, err
	}
	t.Root = root
	return prev, nil
}

// Remove deletes a key from the tree, returning the previous value; nil
// if the key was not present.
//
// The nodes adjacent to the removed key are marked for inclusion in the
// next block diff, as proof of the deletion; on a partial tree this
// fails with [ErrPartialTree] when those nodes are not available.
func (t *Tree) Remove(key []byte) (*cid.Cid, error) {
	return t.remove(key, true)
}

func (t *Tree) remove(key []byte, prove bool) (*cid.Cid, error) {
	root, prev, err := t.Root.remove(key, -1, prove)
	if err != nil {
		return nil, err
	}
	t.Root = root
	return prev, nil
}

// Get reads the value (CID) for a key. Returns (nil, nil) if the key is
// not in the tree.
func (t *Tree) Get(key []byte) (*cid.Cid, error) {
	return t.Root.getCID(key, -1)
}

// RootCID computes the overall CID of the tree, re-encoding any dirty
// nodes along the way (without storing blocks anywhere).
func (t *Tree) RootCID() (*cid.Cid, error) {
	if t.Root == nil {
		return nil, fmt.Errorf("tree missing root node")
	}
	if t.Root.Stub && t.Root.CID != nil {
		return t.Root.CID, nil
	}
	return t.Root.writeBlocks(context.Background(), nil, true)
}

// Copy returns a deep copy of the tree, sharing no mutable state with
// the original.
func (t *Tree) Copy() *Tree {
	return &Tree{Root: t.Root.deepCopy()}
}

// ReadToMap writes all key/value pairs in the tree into m, which must be
// initialized by the caller.
func (t *Tree) ReadToMap(m map[string]cid.Cid) error {
	if m == nil {
		return fmt.Errorf("un-initialized map as an argument")
	}
	if t.Root == nil {
		return fmt.Errorf("tree missing root node")
	}
	return t.Root.writeToMap(m)
}

// IsPartial indicates whether any node of the tree is referenced by CID
// without being held in memory.
func (t *Tree) IsPartial() bool {
	return t.Root.IsPartial()
}

// WriteBlocks encodes every node of the tree and writes the blocks to
// the blockstore. Returns the root CID.
func (t *Tree) WriteBlocks(ctx context.Context, bs blockstore.Blockstore) (*cid.Cid, error) {
	return t.Root.writeBlocks(ctx, bs, false)
}

// WriteDiffBlocks encodes and writes only the nodes marked dirty since
// CIDs were last computed: the blocks touched by recent mutations, plus
// any proof nodes marked along the way. Returns the root CID.
func (t *Tree) WriteDiffBlocks(ctx context.Context, bs blockstore.Blockstore) (*cid.Cid, error) {
	return t.Root.writeBlocks(ctx, bs, true)
}
