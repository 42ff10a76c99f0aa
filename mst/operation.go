package mst

import (
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
)

// Operation is a single record mutation against a tree: a creation,
// update, or deletion, identified by the value and previous-value
// combination. The Prev field is what makes an operation invertible.
type Operation struct {
	// key of the record ("collection/rkey")
	Path string
	// new value; nil for deletions
	Value *cid.Cid
	// previous value; nil for creations
	Prev *cid.Cid
}

func (op *Operation) IsCreate() bool {
	return op.Value != nil && op.Prev == nil
}

func (op *Operation) IsUpdate() bool {
	return op.Value != nil && op.Prev != nil && *op.Value != *op.Prev
}

func (op *Operation) IsDelete() bool {
	return op.Value == nil && op.Prev != nil
}

// ApplyOp mutates the tree, writing the value to the path (or deleting
// the path, if val is nil), and returns the full resulting Operation
// including the previous value.
func (t *Tree) ApplyOp(path string, val *cid.Cid) (*Operation, error) {
	if val != nil {
		prev, err := t.Insert([]byte(path), *val)
		if err != nil {
			return nil, err
		}
		return &Operation{Path: path, Value: val, Prev: prev}, nil
	}
	prev, err := t.Remove([]byte(path))
	if err != nil {
		return nil, err
	}
	return &Operation{Path: path, Value: nil, Prev: prev}, nil
}

// CheckOp does a simple "forwards" verification of an operation against
// the current tree: the path must hold the operation's value (or be
// absent, for deletions).
func (t *Tree) CheckOp(op *Operation) error {
	val, err := t.Get([]byte(op.Path))
	if err != nil {
		return err
	}
	if op.IsCreate() || op.IsUpdate() {
		if val == nil || *val != *op.Value {
			return fmt.Errorf("tree value did not match op: %s %s", op.Path, val)
		}
		return nil
	}
	if op.IsDelete() {
		if val != nil {
			return fmt.Errorf("key still in tree after deletion op: %s", op.Path)
		}
		return nil
	}
	return fmt.Errorf("invalid operation")
}

// InvertOp un-does an operation against the tree, verifying that the
// tree state matched the operation along the way. Inverting a deletion
// against a partial tree requires the proof nodes adjacent to the
// deleted key to be present.
func (t *Tree) InvertOp(op *Operation) error {
	if op.IsCreate() {
		// no proof marking: un-doing a creation is not itself a deletion
		// which anyone will need to invert
		prev, err := t.remove([]byte(op.Path), false)
		if err != nil {
			return fmt.Errorf("failed to invert op: %w", err)
		}
		if prev == nil || *prev != *op.Value {
			return fmt.Errorf("failed to invert creation")
		}
		return nil
	}
	if op.IsUpdate() {
		prev, err := t.Insert([]byte(op.Path), *op.Prev)
		if err != nil {
			return fmt.Errorf("failed to invert op: %w", err)
		}
		if prev == nil || *prev != *op.Value {
			return fmt.Errorf("failed to invert update")
		}
		return nil
	}
	if op.IsDelete() {
		prev, err := t.Insert([]byte(op.Path), *op.Prev)
		if err != nil {
			return fmt.Errorf("failed to invert op: %w", err)
		}
		if prev != nil {
			return fmt.Errorf("failed to invert deletion")
		}
		return nil
	}
	return fmt.Errorf("invalid operation")
}

type opByPath []Operation

func (a opByPath) Len() int      { return len(a) }
func (a opByPath) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

func (a opByPath) Less(i, j int) bool {
	// deletions sort first
	if a[i].IsDelete() && !a[j].IsDelete() {
		return true
	}
	if a[j].IsDelete() && !a[i].IsDelete() {
		return false
	}
	// then by path
	return a[i].Path < a[j].Path
}

// NormalizeOps re-orders an operation list into the canonical order
// (deletions first, then by path), and rejects duplicate paths.
func NormalizeOps(list []Operation) ([]Operation, error) {
	set := map[string]bool{}
	for _, op := range list {
		if set[op.Path] {
			return nil, fmt.Errorf("duplicate path in operation list")
		}
		set[op.Path] = true
	}

	sort.Sort(opByPath(list))
	return list, nil
}
