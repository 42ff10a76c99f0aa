package mst

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ipfs/go-cid"
)

// Removes a key from the sub-tree. Returns the new sub-tree root and the
// previous value; if the key was not in the tree, the sub-tree comes
// back unmodified and the previous value is nil.
//
// height is the tree height corresponding to the key; pass -1 to have it
// computed (which also marks this call as the top of the tree, enabling
// root trimming).
//
// With prove set, the nodes adjacent to the removed key get marked
// dirty as proof of the deletion; this fails on a partial tree when the
// proof nodes are not available. Inversion of a creation passes false,
// as un-doing an op does not need new proof blocks.
func (n *Node) remove(key []byte, height int, prove bool) (*Node, *cid.Cid, error) {
	if n.Stub {
		return nil, nil, ErrPartialTree
	}
	top := false
	if height < 0 {
		top = true
		height = HeightForKey(key)
	}

	if height > n.Height {
		// key would live above this node; not in tree
		return n, nil, nil
	}

	if height < n.Height {
		return n.removeChild(key, height, prove)
	}

	// look at this level
	idx := n.findExistingEntry(key)
	if idx < 0 {
		// key not found
		return n, nil, nil
	}

	n.Dirty = true
	prev := n.Entries[idx].Value

	// removing the value may leave two child pointers adjacent; merge them
	if idx > 0 && idx+1 < len(n.Entries) && n.Entries[idx-1].IsChild() && n.Entries[idx+1].IsChild() {
		if n.Entries[idx-1].Child == nil || n.Entries[idx+1].Child == nil {
			return nil, nil, fmt.Errorf("can not merge child nodes: %w", ErrPartialTree)
		}
		merged, err := mergeNodes(n.Entries[idx-1].Child, n.Entries[idx+1].Child)
		if err != nil {
			return nil, nil, err
		}
		n.Entries = slices.Delete(n.Entries, idx, idx+2)
		n.Entries[idx-1] = NodeEntry{Child: merged, Dirty: true}
	} else {
		n.Entries = slices.Delete(n.Entries, idx, idx+1)
	}

	// mark the nodes adjacent to the removed key dirty, so they travel
	// along as proof of the deletion
	if prove {
		if err := proveDeletion(n, key); err != nil {
			return nil, nil, err
		}
	}

	// trim the top of the tree while it is a bare pointer down
	if top {
		for {
			if len(n.Entries) != 1 || !n.Entries[0].IsChild() {
				break
			}
			if n.Entries[0].Child == nil {
				// partial tree: the trimmed root is only known by CID
				if n.Entries[0].ChildCID == nil {
					return nil, nil, fmt.Errorf("can not prune top of tree: %w", ErrPartialTree)
				}
				n = &Node{
					Height: n.Height - 1,
					Stub:   true,
					CID:    n.Entries[0].ChildCID,
				}
			} else {
				n = n.Entries[0].Child
			}
		}
	}
	return n, prev, nil
}

// marks dirty the child nodes needed to show the keys adjacent to a
// deleted key, so the deletion can be inverted later
func proveDeletion(n *Node, key []byte) error {
	for i, e := range n.Entries {
		if e.IsValue() {
			if bytes.Compare(key, e.Key) < 0 {
				return nil
			}
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
				return fmt.Errorf("can't prove deletion: %w", ErrPartialTree)
			}
			order, err := e.Child.compareKey(key, true)
			if err != nil {
				return err
			}
			if order > 0 {
				// key comes after this entire child sub-tree
				continue
			}
			if order < 0 {
				return nil
			}
			// key falls inside this child sub-tree
			return proveDeletion(e.Child, key)
		}
	}
	return nil
}

func mergeNodes(left *Node, right *Node) (*Node, error) {
	idx := len(left.Entries)
	n := &Node{
		Height:  left.Height,
		Dirty:   true,
		Entries: append(left.Entries, right.Entries...),
	}
	if n.Entries[idx-1].IsChild() && n.Entries[idx].IsChild() {
		// the seam is two adjacent child pointers; merge those recursively
		lowerLeft := n.Entries[idx-1]
		lowerRight := n.Entries[idx]
		if lowerLeft.Child == nil || lowerRight.Child == nil {
			return nil, fmt.Errorf("can not merge child nodes: %w", ErrPartialTree)
		}
		lowerMerged, err := mergeNodes(lowerLeft.Child, lowerRight.Child)
		if err != nil {
			return nil, err
		}
		n.Entries[idx-1] = NodeEntry{Child: lowerMerged, Dirty: true}
		n.Entries = slices.Delete(n.Entries, idx, idx+1)
	}
	return n, nil
}

func (n *Node) removeChild(key []byte, height int, prove bool) (*Node, *cid.Cid, error) {
	idx := n.findExistingChild(key)
	if idx < 0 {
		// no covering child; key not in tree
		return n, nil, nil
	}

	e := n.Entries[idx]
	if e.Child == nil {
		return nil, nil, fmt.Errorf("could not remove key: %w", ErrPartialTree)
	}
	newChild, prev, err := e.Child.remove(key, height, prove)
	if err != nil {
		return nil, nil, err
	}
	if prev == nil {
		// no-op
		return n, nil, nil
	}

	// child was updated but still has entries; just update the pointer
	if !newChild.IsEmpty() {
		n.Dirty = true
		n.Entries[idx].Child = newChild
		n.Entries[idx].Dirty = true
		return n, prev, nil
	}

	// child emptied out; drop the entry entirely
	n.Dirty = true
	n.Entries = slices.Delete(n.Entries, idx, idx+1)
	return n, prev, nil
}
