package mst

import (
	"context"
	"fmt"
	"io"

	"github.com/cobalt-social/cobalt/data"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/ipld/go-car/v2"
)

// ReadTreeFromCAR reads a CAR archive of a single commit and returns the
// (possibly partial) tree it carries, along with the tree's root CID.
//
// The archive's root block must be a commit object, whose "data" field
// points at the tree. Every block is re-hashed and checked against its
// claimed CID while reading.
func ReadTreeFromCAR(ctx context.Context, r io.Reader) (*Tree, *cid.Cid, error) {

	bs := blockstore.NewBlockstore(datastore.NewMapDatastore())

	br, err := car.NewBlockReader(r)
	if err != nil {
		return nil, nil, err
	}

	for {
		blk, err := br.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, err
		}

		// verify block integrity: re-derive the CID from the raw bytes
		chk, err := blk.Cid().Prefix().Sum(blk.RawData())
		if err != nil {
			return nil, nil, err
		}
		if !chk.Equals(blk.Cid()) {
			return nil, nil, fmt.Errorf("CAR block does not match claimed CID: %s", blk.Cid())
		}

		if err := bs.Put(ctx, blk); err != nil {
			return nil, nil, err
		}
	}

	if len(br.Roots) < 1 {
		return nil, nil, fmt.Errorf("CAR file missing root CID")
	}
	commitCID := br.Roots[0]

	commitBlock, err := bs.Get(ctx, commitCID)
	if err != nil {
		return nil, nil, fmt.Errorf("reading commit block from CAR file: %w", err)
	}

	obj, err := data.UnmarshalCBOR(commitBlock.RawData())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing commit block from CAR file: %w", err)
	}
	raw, ok := obj["data"]
	if !ok {
		return nil, nil, fmt.Errorf("no data CID in commit block")
	}
	cl, ok := raw.(data.CIDLink)
	if !ok {
		return nil, nil, fmt.Errorf("wrong data type in commit block: %T", raw)
	}
	rootCID := cl.CID()

	t, err := LoadTreeFromStore(ctx, bs, rootCID)
	if err != nil {
		return nil, nil, fmt.Errorf("reading MST from CAR file: %w", err)
	}
	return t, &rootCID, nil
}
