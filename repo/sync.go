package repo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/ipfs/go-cid"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/mst"
	"github.com/cobalt-social/cobalt/syntax"
)

// CommitDiff is the complete description of a single commit, as
// produced by [Repo.ApplyWrites] and as broadcast to subscribers: the
// signed commit, the record operations, and a CAR slice holding the
// commit block, the new record blocks, and the tree nodes touched by
// the batch (including deletion proof nodes).
type CommitDiff struct {
	Commit    Commit
	CommitCID cid.Cid
	Ops       []mst.Operation
	// tree root of the parent commit; nil for an account's first commit
	PrevData *cid.Cid
	CARSlice []byte
}

// VerifyCommitDiff checks a [CommitDiff] the way a subscriber should
// before accepting it: every block hashes to its CID, the commit is
// structurally valid and correctly signed, the claimed operations
// match the partial tree, and inverting the operations yields the
// parent tree root (PrevData).
//
// pubkey may be nil, skipping signature verification, for callers
// which have not resolved the account's signing key.
//
// Returns the partial repository at the new commit on success.
func VerifyCommitDiff(ctx context.Context, d *CommitDiff, pubkey crypto.PublicKey) (*Repo, error) {
	logger := slog.With("did", d.Commit.DID, "rev", d.Commit.Rev)

	commit, commitCID, bs, err := LoadCommitFromCAR(ctx, bytes.NewReader(d.CARSlice))
	if err != nil {
		return nil, err
	}
	if !commitCID.Equals(d.CommitCID) {
		return nil, fmt.Errorf("CAR root does not match commit CID")
	}
	if commit.DID != d.Commit.DID {
		return nil, fmt.Errorf("DID did not match commit CAR: %s != %s", d.Commit.DID, commit.DID)
	}
	if commit.Rev != d.Commit.Rev {
		return nil, fmt.Errorf("rev did not match commit CAR: %s != %s", d.Commit.Rev, commit.Rev)
	}
	if pubkey != nil {
		if err := commit.VerifySignature(pubkey); err != nil {
			return nil, err
		}
	}

	tree, err := mst.LoadTreeFromStore(ctx, bs, commit.Data)
	if err != nil {
		return nil, fmt.Errorf("reading partial tree from CAR slice: %w", err)
	}

	ops, err := checkDiffOps(ctx, tree, bs, d.Ops)
	if err != nil {
		logger.Info("invalid commit diff ops", "err", err)
		return nil, err
	}

	// inverting the ops against a copy of the partial tree must land
	// back on the parent commit's tree root
	inverted := tree.Copy()
	for i := range ops {
		if err := inverted.InvertOp(&ops[i]); err != nil {
			return nil, fmt.Errorf("inverting ops: %w", err)
		}
	}
	computed, err := inverted.RootCID()
	if err != nil {
		return nil, err
	}
	if d.PrevData != nil {
		if !computed.Equals(*d.PrevData) {
			return nil, fmt.Errorf("inverted tree root did not match previous commit")
		}
	} else {
		// first commit for the account: inversion must yield an empty tree
		empty, err := mst.NewEmptyTree().RootCID()
		if err != nil {
			return nil, err
		}
		if !computed.Equals(*empty) {
			return nil, fmt.Errorf("initial commit did not start from an empty tree")
		}
	}

	repo, err := LoadRepoFromCAR(ctx, bytes.NewReader(d.CARSlice))
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// checkDiffOps validates claimed operations against the partial tree
// and block store: paths are syntactically valid, the shape of each op
// is coherent, and created or updated records are present as blocks.
// Returns the ops in normalized order.
func checkDiffOps(ctx context.Context, tree *mst.Tree, bs *MapBlockstore, ops []mst.Operation) ([]mst.Operation, error) {
	for i := range ops {
		op := &ops[i]
		if _, _, err := syntax.ParseRepoPath(op.Path); err != nil {
			return nil, err
		}
		if !op.IsCreate() && !op.IsUpdate() && !op.IsDelete() {
			return nil, fmt.Errorf("invalid op for path: %s", op.Path)
		}
		if err := tree.CheckOp(op); err != nil {
			return nil, err
		}
		if op.Value != nil {
			ok, err := bs.Has(ctx, *op.Value)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("record block missing from CAR slice: %s", op.Path)
			}
		}
	}
	return mst.NormalizeOps(append([]mst.Operation{}, ops...))
}
