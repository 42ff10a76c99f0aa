package mst

import (
	"bytes"
	"fmt"
)

// Verify checks the structural invariants of the whole tree: sorted
// unique keys, keys at the height their hash demands, no adjacent child
// pointers, and no entries below height zero.
func (t *Tree) Verify() error {
	if t.Root == nil {
		return fmt.Errorf("tree missing root node")
	}
	return t.Root.verifyStructure(-1, nil)
}

func (n *Node) verifyStructure(height int, key []byte) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidTree)
	}
	if n.Stub {
		return fmt.Errorf("%w: stub node", ErrInvalidTree)
	}
	if n.CID == nil && !n.Dirty {
		return fmt.Errorf("%w: node missing CID, but not marked dirty", ErrInvalidTree)
	}
	if len(n.Entries) == 0 {
		if height >= 0 {
			return fmt.Errorf("%w: empty interior node", ErrInvalidTree)
		}
		// entire tree is empty
		return nil
	}

	if height < 0 {
		// compute the expected height from the first value entry
		for _, e := range n.Entries {
			if e.IsValue() {
				height = HeightForKey(e.Key)
				break
			}
		}
	}
	if height < 0 {
		return fmt.Errorf("%w: top of tree is a bare pointer to child", ErrInvalidTree)
	}
	if n.Height != height {
		return fmt.Errorf("%w: node has incorrect height: %d (expected %d)", ErrInvalidTree, n.Height, height)
	}

	lastWasChild := false
	for _, e := range n.Entries {
		if e.IsChild() {
			if lastWasChild {
				return fmt.Errorf("%w: sibling children in entry list", ErrInvalidTree)
			}
			lastWasChild = true
			if e.IsValue() {
				return fmt.Errorf("%w: entry is both a child and a value", ErrInvalidTree)
			}
			if height == 0 {
				return fmt.Errorf("%w: child below zero height", ErrInvalidTree)
			}
			if e.Child != nil {
				if err := e.Child.verifyStructure(height-1, key); err != nil {
					return err
				}
			}
		} else if e.IsValue() {
			lastWasChild = false
			if bytes.Equal(key, e.Key) {
				return fmt.Errorf("%w: duplicate key in tree", ErrInvalidTree)
			}
			if bytes.Compare(key, e.Key) > 0 {
				return fmt.Errorf("%w: out of order keys", ErrInvalidTree)
			}
			key = e.Key
			if height != HeightForKey(e.Key) {
				return fmt.Errorf("%w: wrong height for key: %d", ErrInvalidTree, HeightForKey(e.Key))
			}
		} else {
			return fmt.Errorf("%w: entry was neither child nor value", ErrInvalidTree)
		}
	}
	return nil
}
