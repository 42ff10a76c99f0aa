package mst

import (
	"bytes"
	"fmt"

	"github.com/ipfs/go-cid"
)

// Node is a single node of the tree. The node at the top of the tree
// effectively is the tree.
//
// Nodes of a "partial" tree may reference children by CID without a
// pointer to the child Node itself.
type Node struct {
	// ordered list of entries. must be sorted by key at all times, with at
	// most one child pointer between any two values.
	Entries []NodeEntry
	// layer of the tree this node sits at, counting from zero at the bottom
	Height int
	// set when the cached CID no longer matches the entries
	Dirty bool
	// last computed CID of this node's serialized form, if known
	CID *cid.Cid
	// an empty placeholder which stands in for a sub-tree by CID only.
	// produced when trimming the top of a partial tree during inversion.
	Stub bool
}

// NodeEntry is either a key/value pair, or a pointer to a child node one
// layer down. These do not correspond one-to-one with the serialized
// entry list.
//
// For a value: Key and Value are set. For a child: Child and/or ChildCID
// are set; ChildCID without Child marks a partial tree.
type NodeEntry struct {
	Key      []byte
	Value    *cid.Cid
	ChildCID *cid.Cid
	Child    *Node

	// set when this entry changed since the parent node's CID was computed
	Dirty bool
}

func (n *Node) IsEmpty() bool {
	return len(n.Entries) == 0
}

// IsPartial indicates whether this sub-tree references any node by CID
// without holding the node itself.
func (n *Node) IsPartial() bool {
	if n.Stub {
		return true
	}
	for _, e := range n.Entries {
		if e.ChildCID != nil && e.Child == nil {
			return true
		}
		if e.Child != nil && e.Child.IsPartial() {
			return true
		}
	}
	return false
}

// IsValue indicates a key/value entry at the current node.
func (e *NodeEntry) IsValue() bool {
	return len(e.Key) > 0 && e.Value != nil
}

// IsChild indicates a pointer to a node one layer down.
func (e *NodeEntry) IsChild() bool {
	return e.Child != nil || e.ChildCID != nil
}

// recursive copy of the sub-tree. entry slices are not shared with the
// original, so mutations on one tree can not reach over into the other.
func (n *Node) deepCopy() *Node {
	out := Node{
		Entries: make([]NodeEntry, len(n.Entries)),
		Height:  n.Height,
		Dirty:   n.Dirty,
		Stub:    n.Stub,
		CID:     n.CID,
	}
	for i, e := range n.Entries {
		out.Entries[i] = NodeEntry{
			Key:      e.Key,
			Value:    e.Value,
			ChildCID: e.ChildCID,
			Dirty:    e.Dirty,
		}
		if e.Child != nil {
			out.Entries[i].Child = e.Child.deepCopy()
		}
	}
	return &out
}

// Looks for a value entry with the exact key at this node. Returns the
// entry index, or -1 if not found.
func (n *Node) findExistingEntry(key []byte) int {
	for i, e := range n.Entries {
		if e.IsValue() && bytes.Equal(key, e.Key) {
			return i
		}
	}
	return -1
}

// Looks for a child entry which the key would live under. Returns -1 if
// there is no such child.
func (n *Node) findExistingChild(key []byte) int {
	idx := -1
	for i, e := range n.Entries {
		if e.IsChild() {
			idx = i
			continue
		}
		if e.IsValue() {
			if bytes.Compare(key, e.Key) <= 0 {
				break
			}
			idx = -1
		}
	}
	return idx
}

// Determines the index where a new entry (child or value) for the given
// key would be inserted at this node.
//
// If the key falls inside the range of an existing child entry, that
// entry's index is returned with the split flag set. If the key sorts
// after everything here, the returned index is one past the end.
func (n *Node) findInsertionIndex(key []byte) (idx int, split bool, retErr error) {
	if n.Stub {
		return -1, false, fmt.Errorf("%w: can't determine insertion order", ErrPartialTree)
	}
	for i, e := range n.Entries {
		if e.IsValue() {
			if bytes.Compare(key, e.Key) < 0 {
				return i, false, nil
			}
		}
		if e.IsChild() {
			// if the next entry is a value the key sorts after, this child
			// can be skipped without recursing
			if i+1 < len(n.Entries) {
				next := n.Entries[i+1]
				if next.IsValue() && bytes.Compare(key, next.Key) > 0 {
					continue
				}
			}
			if e.Child == nil {
				return -1, false, fmt.Errorf("%w: can't determine insertion order", ErrPartialTree)
			}
			order, err := e.Child.compareKey(key, false)
			if err != nil {
				return -1, false, err
			}
			if order < 0 {
				// key comes before this entire child sub-tree
				return i, false, nil
			}
			if order > 0 {
				// key comes after this entire child sub-tree
				continue
			}
			// key falls inside this child sub-tree
			return i, true, nil
		}
	}

	// would need to be appended after
	return len(n.Entries), false, nil
}

// Compares a key against the overall range of keys covered by this
// sub-tree. Returns -1 if the key sorts below every key in the sub-tree,
// 1 if above, and 0 if it falls within the range.
//
// With markDirty set, this node and any child nodes visited to establish
// the ordering get flagged dirty, which pulls them in to invertible
// diffs as proof blocks.
func (n *Node) compareKey(key []byte, markDirty bool) (int, error) {
	if n.Stub {
		return -1, ErrPartialTree
	}
	if n.IsEmpty() {
		return 0, fmt.Errorf("can't determine key range of empty node")
	}
	if markDirty {
		n.Dirty = true
	}
	// check if lower than this entire node
	e := n.Entries[0]
	if e.IsValue() && bytes.Compare(key, e.Key) < 0 {
		return -1, nil
	}
	// check if higher than this entire node
	e = n.Entries[len(n.Entries)-1]
	if e.IsValue() && bytes.Compare(key, e.Key) > 0 {
		return 1, nil
	}
	for i, e := range n.Entries {
		if e.IsValue() && bytes.Compare(key, e.Key) < 0 {
			// no need to look further
			return 0, nil
		}
		if e.IsChild() {
			// skip this child if the key sorts after the next value entry
			if i+1 < len(n.Entries) {
				next := n.Entries[i+1]
				if next.IsValue() && bytes.Compare(key, next.Key) > 0 {
					continue
				}
			}
			if e.Child == nil {
				return 0, fmt.Errorf("%w: can't compare key order recursively", ErrPartialTree)
			}
			order, err := e.Child.compareKey(key, markDirty)
			if err != nil {
				return 0, err
			}
			// lower than entire node
			if i == 0 && order < 0 {
				return -1, nil
			}
			// higher than entire node
			if i == len(n.Entries)-1 && order > 0 {
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, nil
}

// Reads the value (CID) for the key out of the sub-tree. If the key is
// not present, returns (nil, nil).
//
// height is the tree height corresponding to the key; pass -1 to have it
// computed.
func (n *Node) getCID(key []byte, height int) (*cid.Cid, error) {
	if n.Stub {
		return nil, ErrPartialTree
	}
	if height < 0 {
		height = HeightForKey(key)
	}

	if height > n.Height {
		// key would live above this node; not in tree
		return nil, nil
	}

	if height < n.Height {
		// descend to a child node, if any covers the key
		idx := n.findExistingChild(key)
		if idx >= 0 {
			if n.Entries[idx].Child == nil {
				return nil, fmt.Errorf("could not search for key: %w", ErrPartialTree)
			}
			return n.Entries[idx].Child.getCID(key, height)
		}
		return nil, nil
	}

	// search at this height
	idx := n.findExistingEntry(key)
	if idx >= 0 {
		return n.Entries[idx].Value, nil
	}

	return nil, nil
}

// Recursively writes all key/value pairs of the sub-tree into m.
func (n *Node) writeToMap(m map[string]cid.Cid) error {
	if n == nil {
		return fmt.Errorf("nil tree node")
	}
	for _, e := range n.Entries {
		if e.IsValue() {
			m[string(e.Key)] = *e.Value
		}
		if e.Child != nil {
			if err := e.Child.writeToMap(m); err != nil {
				return err
			}
		}
	}
	return nil
}
