package mst

import (
	"bytes"
	"fmt"
)

// DiffTrees compares two complete trees and returns the set of
// operations that turn prev into next: creations, updates, and
// deletions, each carrying the previous value where one existed.
//
// Sub-trees with matching CIDs are skipped without descending, so the
// cost scales with the size of the difference rather than the size of
// the trees. Both trees must be complete (not partial), and have their
// node CIDs computed, which DiffTrees does up front.
//
// Diffing a tree against itself (or an identical tree) returns no
// operations.
func DiffTrees(prev, next *Tree) ([]Operation, error) {
	if prev == nil || next == nil {
		return nil, fmt.Errorf("diffing a nil tree")
	}
	// make sure cached CIDs are current, so sub-tree comparison works
	if _, err := prev.RootCID(); err != nil {
		return nil, fmt.Errorf("computing CIDs on previous tree: %w", err)
	}
	if _, err := next.RootCID(); err != nil {
		return nil, fmt.Errorf("computing CIDs on next tree: %w", err)
	}

	var out []Operation
	fents := append([]NodeEntry{}, prev.Root.Entries...)
	tents := append([]NodeEntry{}, next.Root.Entries...)

	var ixf, ixt int
	for ixf < len(fents) && ixt < len(tents) {
		ef := &fents[ixf]
		et := &tents[ixt]

		if diffEntriesEqual(ef, et) {
			ixf++
			ixt++
			continue
		}

		if ef.IsValue() && et.IsValue() {
			cmp := bytes.Compare(ef.Key, et.Key)
			if cmp == 0 {
				// same key, different value
				out = append(out, Operation{
					Path:  string(ef.Key),
					Value: et.Value,
					Prev:  ef.Value,
				})
				ixf++
				ixt++
				continue
			}
			if cmp > 0 {
				// key only in the next tree
				out = append(out, Operation{
					Path:  string(et.Key),
					Value: et.Value,
				})
				ixt++
			} else {
				// key only in the previous tree
				out = append(out, Operation{
					Path: string(ef.Key),
					Prev: ef.Value,
				})
				ixf++
			}
			continue
		}

		// on a mismatch involving a child pointer, expand the child in
		// place and compare at the lower layer
		if ef.IsChild() {
			if ef.Child == nil {
				return nil, fmt.Errorf("diffing: %w", ErrPartialTree)
			}
			fents = append(append([]NodeEntry{}, ef.Child.Entries...), fents[ixf+1:]...)
			ixf = 0
			continue
		}
		if et.IsChild() {
			if et.Child == nil {
				return nil, fmt.Errorf("diffing: %w", ErrPartialTree)
			}
			tents = append(append([]NodeEntry{}, et.Child.Entries...), tents[ixt+1:]...)
			ixt = 0
			continue
		}
	}

	// anything left in the previous tree was deleted
	for ; ixf < len(fents); ixf++ {
		if err := walkEntryLeaves(&fents[ixf], func(key []byte, e *NodeEntry) {
			out = append(out, Operation{
				Path: string(key),
				Prev: e.Value,
			})
		}); err != nil {
			return nil, err
		}
	}

	// anything left in the next tree was created
	for ; ixt < len(tents); ixt++ {
		if err := walkEntryLeaves(&tents[ixt], func(key []byte, e *NodeEntry) {
			out = append(out, Operation{
				Path:  string(key),
				Value: e.Value,
			})
		}); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func diffEntriesEqual(a, b *NodeEntry) bool {
	if a.IsValue() && b.IsValue() {
		return bytes.Equal(a.Key, b.Key) && *a.Value == *b.Value
	}
	if a.IsChild() && b.IsChild() {
		return a.ChildCID != nil && b.ChildCID != nil && *a.ChildCID == *b.ChildCID
	}
	return false
}

func walkEntryLeaves(e *NodeEntry, fn func(key []byte, e *NodeEntry)) error {
	if e.IsValue() {
		fn(e.Key, e)
		return nil
	}
	if e.IsChild() {
		if e.Child == nil {
			return fmt.Errorf("diffing: %w", ErrPartialTree)
		}
		for i := range e.Child.Entries {
			if err := walkEntryLeaves(&e.Child.Entries[i], fn); err != nil {
				return err
			}
		}
	}
	return nil
}
