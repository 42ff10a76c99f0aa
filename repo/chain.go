package repo

import (
	"context"
	"fmt"

	blockstore "github.com/ipfs/go-ipfs-blockstore"

	"github.com/cobalt-social/cobalt/crypto"
	"github.com/cobalt-social/cobalt/mst"
)

// VerifyCommitChain checks a sequence of commits, ordered oldest
// first, for chain integrity: every commit is structurally valid and
// signed by the given key, belongs to the same account, links to its
// parent by CID, strictly increases the revision, and has its tree
// root fully resolvable in the block store. Fails fast on the first
// broken link.
//
// pubkey may be nil, skipping signature verification. bs may be nil,
// skipping the tree resolution check.
func VerifyCommitChain(ctx context.Context, bs blockstore.Blockstore, commits []*Commit, pubkey crypto.PublicKey) error {
	if len(commits) == 0 {
		return fmt.Errorf("empty commit chain")
	}

	prevCID := commits[0].Prev
	prevRev := ""
	for i, c := range commits {
		if err := c.VerifyStructure(); err != nil {
			return fmt.Errorf("commit %d (%s): %w", i, c.Rev, err)
		}
		if c.DID != commits[0].DID {
			return fmt.Errorf("commit %d (%s): account changed mid-chain", i, c.Rev)
		}
		if pubkey != nil {
			if err := c.VerifySignature(pubkey); err != nil {
				return fmt.Errorf("commit %d (%s): %w", i, c.Rev, err)
			}
		}
		if !cidPtrEqual(c.Prev, prevCID) {
			return fmt.Errorf("commit %d (%s): prev does not link to parent commit", i, c.Rev)
		}
		if c.Rev <= prevRev {
			return fmt.Errorf("commit %d (%s): revision did not increase", i, c.Rev)
		}
		if bs != nil {
			tree, err := mst.LoadTreeFromStore(ctx, bs, c.Data)
			if err != nil {
				return fmt.Errorf("commit %d (%s): reading tree %s: %w", i, c.Rev, c.Data, err)
			}
			if tree.IsPartial() {
				return fmt.Errorf("commit %d (%s): tree %s is missing nodes: %w", i, c.Rev, c.Data, mst.ErrPartialTree)
			}
		}

		_, cc, err := c.Bytes()
		if err != nil {
			return err
		}
		prevCID = cc
		prevRev = c.Rev
	}
	return nil
}
