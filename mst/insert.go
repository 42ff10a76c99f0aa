package mst

import (
	"fmt"
	"slices"

	"github.com/ipfs/go-cid"
)

// Adds a key/CID entry to the sub-tree. Returns the new sub-tree root,
// and the previous value if the key already existed.
//
// Inserting a key with its existing value is a no-op: the tree is not
// marked dirty, and val comes back as the previous value.
//
// height is the tree height derived from the key; pass -1 to have it
// computed.
func (n *Node) insert(key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	if n == nil {
		return nil, nil, fmt.Errorf("operating on nil tree node")
	}
	if n.Stub {
		return nil, nil, ErrPartialTree
	}
	if height < 0 {
		height = HeightForKey(key)
	}

	if height > n.Height {
		// key lives above the current top of the tree; push parent nodes,
		// which may split this node
		return n.insertParent(key, val, height)
	}

	if height < n.Height {
		// key lives below this node; descend
		return n.insertChild(key, val, height)
	}

	// look for existing key
	idx := n.findExistingEntry(key)
	if idx >= 0 {
		e := n.Entries[idx]
		if *e.Value == val {
			// same value already present; no-op
			return n, &val, nil
		}
		// update
		prev := e.Value
		n.Entries[idx].Value = &val
		n.Entries[idx].Dirty = true
		n.Dirty = true
		return n, prev, nil
	}

	// insert a new entry at this node
	idx, split, err := n.findInsertionIndex(key)
	if err != nil {
		return nil, nil, err
	}
	n.Dirty = true
	newEntry := NodeEntry{
		Key:   key,
		Value: &val,
		Dirty: true,
	}

	if !split {
		if idx >= len(n.Entries) {
			n.Entries = append(n.Entries, newEntry)
		} else {
			n.Entries = slices.Insert(n.Entries, idx, newEntry)
		}
		return n, nil, nil
	}

	// the key straddles an existing child; split it and put the new value
	// between the two halves
	e := n.Entries[idx]
	left, right, err := e.Child.split(key)
	if err != nil {
		return nil, nil, err
	}
	n.Entries = slices.Delete(n.Entries, idx, idx+1)
	n.Entries = slices.Insert(
		n.Entries,
		idx,
		NodeEntry{Child: left, Dirty: true},
		newEntry,
		NodeEntry{Child: right, Dirty: true},
	)
	return n, nil, nil
}

func (n *Node) splitEntries(idx int) (*Node, *Node, error) {
	if idx == 0 || idx >= len(n.Entries) {
		return nil, nil, fmt.Errorf("splitting at one end or the other of entries")
	}
	left := Node{
		Height:  n.Height,
		Dirty:   true,
		Entries: n.Entries[:idx],
	}
	right := Node{
		Height: n.Height,
		Dirty:  true,
		// don't share the backing array between the two halves
		Entries: append([]NodeEntry{}, n.Entries[idx:]...),
	}
	if left.IsEmpty() || right.IsEmpty() {
		return nil, nil, fmt.Errorf("one of the split legs is empty (idx=%d, len=%d)", idx, len(n.Entries))
	}
	return &left, &right, nil
}

// Splits the sub-tree around the key, returning the two halves. Recurses
// when the key falls inside a child of this node.
func (n *Node) split(key []byte) (*Node, *Node, error) {
	if n.IsEmpty() {
		return nil, nil, fmt.Errorf("tried to split an empty node")
	}

	idx, split, err := n.findInsertionIndex(key)
	if err != nil {
		return nil, nil, err
	}
	if !split {
		// simple split between entries
		return n.splitEntries(idx)
	}

	// split the covering child recursively
	e := n.Entries[idx]
	lowerLeft, lowerRight, err := e.Child.split(key)
	if err != nil {
		return nil, nil, err
	}
	left := &Node{
		Height:  n.Height,
		Dirty:   true,
		Entries: []NodeEntry{},
	}
	left.Entries = append(left.Entries, n.Entries[:idx]...)
	left.Entries = append(left.Entries, NodeEntry{Child: lowerLeft, Dirty: true})
	right := &Node{
		Height:  n.Height,
		Dirty:   true,
		Entries: []NodeEntry{{Child: lowerRight, Dirty: true}},
	}
	if idx+1 < len(n.Entries) {
		right.Entries = append(right.Entries, n.Entries[idx+1:]...)
	}
	return left, right, nil
}

// inserts a node above this one, possibly splitting the current node
func (n *Node) insertParent(key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	var parent *Node
	if n.IsEmpty() {
		// current node is empty; replace it directly at the target height
		parent = &Node{
			Height: height,
			Dirty:  true,
		}
	} else {
		// push one layer and recurse
		parent = &Node{
			Height: n.Height + 1,
			Dirty:  true,
			Entries: []NodeEntry{{
				Child: n,
				Dirty: true,
			}},
		}
	}
	// regular insertion handles any further layers and splits
	return parent.insert(key, val, height)
}

// inserts below this node, re-using an existing child entry when one
// covers the key
func (n *Node) insertChild(key []byte, val cid.Cid, height int) (*Node, *cid.Cid, error) {
	idx := n.findExistingChild(key)
	if idx >= 0 {
		e := n.Entries[idx]
		if e.Child == nil {
			return nil, nil, fmt.Errorf("could not insert key: %w", ErrPartialTree)
		}
		newChild, prev, err := e.Child.insert(key, val, height)
		if err != nil {
			return nil, nil, err
		}
		if prev != nil && *prev == val {
			// no-op
			return n, &val, nil
		}
		n.Dirty = true
		n.Entries[idx].Child = newChild
		n.Entries[idx].Dirty = true
		return n, prev, nil
	}

	// create a new child entry; recursive if the key is not a direct child
	idx, split, err := n.findInsertionIndex(key)
	if err != nil {
		return nil, nil, err
	}
	if split {
		return nil, nil, fmt.Errorf("unexpected split when inserting child")
	}
	n.Dirty = true
	newChild := &Node{
		Height: n.Height - 1,
		Dirty:  true,
	}
	newChild, _, err = newChild.insert(key, val, height)
	if err != nil {
		return nil, nil, err
	}
	newEntry := NodeEntry{
		Child: newChild,
		Dirty: true,
	}
	if idx == len(n.Entries) {
		n.Entries = append(n.Entries, newEntry)
	} else {
		n.Entries = slices.Insert(n.Entries, idx, newEntry)
	}
	return n, nil, nil
}
