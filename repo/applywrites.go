package repo

import (
	"context"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/data"
	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"
)

// WriteOp is a single requested record mutation in a batch of writes.
// A nil Value indicates a deletion; otherwise the record is created or
// updated to the new value.
type WriteOp struct {
	Collection syntax.NSID
	RecordKey  syntax.RecordKey
	Value      map[string]any
}

func (op *WriteOp) path() string {
	return op.Collection.String() + "/" + op.RecordKey.String()
}

// ApplyWrites applies a batch of record mutations as a single new
// signed commit, and returns the resulting [CommitDiff].
//
// The batch is transactional: if any individual write fails (eg,
// deleting a record which does not exist, or a record value which does
// not pass data model validation), no state is changed.
func (repo *Repo) ApplyWrites(ctx context.Context, writes []WriteOp, privkey crypto.PrivateKey) (*CommitDiff, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if len(writes) == 0 && repo.Commit != nil {
		return nil, fmt.Errorf("empty write batch")
	}

	// settle the current root before mutating, so the diff below only
	// picks up blocks touched by this batch
	var prevData *cid.Cid
	if _, err := repo.MST.RootCID(); err != nil {
		return nil, err
	}
	if repo.Commit != nil {
		prevData = &repo.Commit.Data
	}

	// all mutations happen against a copy of the tree and a staging
	// block store, so a failure part-way through leaves the repo
	// untouched
	next := repo.MST.Copy()
	staged := NewMapBlockstore()

	ops := make([]mst.Operation, 0, len(writes))
	for i := range writes {
		w := &writes[i]
		if w.Value == nil {
			op, err := next.ApplyOp(w.path(), nil)
			if err != nil {
				return nil, err
			}
			if op.Prev == nil {
				return nil, fmt.Errorf("deleting %s: %w", w.path(), ErrNotFound)
			}
			ops = append(ops, *op)
			continue
		}

		if err := data.Validate(w.Value); err != nil {
			return nil, fmt.Errorf("invalid record %s: %w", w.path(), err)
		}
		recBytes, err := data.MarshalCBOR(w.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding record %s: %w", w.path(), err)
		}
		rc, err := cid.NewPrefixV1(cid.DagCBOR, multihash.SHA2_256).Sum(recBytes)
		if err != nil {
			return nil, err
		}
		blk, err := blocks.NewBlockWithCid(recBytes, rc)
		if err != nil {
			return nil, err
		}
		if err := staged.Put(ctx, blk); err != nil {
			return nil, err
		}
		op, err := next.ApplyOp(w.path(), &rc)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}

	// rejects duplicate paths within the batch
	if _, err := mst.NormalizeOps(append([]mst.Operation{}, ops...)); err != nil {
		return nil, err
	}

	// stage the tree nodes created or modified by this batch, plus the
	// proof nodes for any deletions
	root, err := next.WriteDiffBlocks(ctx, staged)
	if err != nil {
		return nil, err
	}

	commit := &Commit{
		DID:     repo.DID.String(),
		Version: RepoVersion,
		Prev:    repo.CommitCID,
		Data:    *root,
		Rev:     repo.Clock.Next().String(),
	}
	if err := commit.Sign(privkey); err != nil {
		return nil, err
	}
	commitBytes, commitCID, err := commit.Bytes()
	if err != nil {
		return nil, err
	}
	commitBlk, err := blocks.NewBlockWithCid(commitBytes, *commitCID)
	if err != nil {
		return nil, err
	}
	if err := staged.Put(ctx, commitBlk); err != nil {
		return nil, err
	}

	carSlice, err := blocksAsCAR(*commitCID, staged)
	if err != nil {
		return nil, err
	}

	// promote the staged state; nothing past this point fails partially
	if err := staged.CopyInto(ctx, repo.RecordStore); err != nil {
		return nil, err
	}
	repo.MST = next
	repo.Commit = commit
	repo.CommitCID = commitCID

	return &CommitDiff{
		Commit:    *commit,
		CommitCID: *commitCID,
		Ops:       ops,
		PrevData:  prevData,
		CARSlice:  carSlice,
	}, nil
}
